package service

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/forum-core/internal/audit"
	"github.com/iliyamo/forum-core/internal/model"
	"github.com/iliyamo/forum-core/internal/repository"
	"github.com/iliyamo/forum-core/internal/utils"
)

func TestLoginIssuesPairAndPersistsIt(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "ann")

	pair, err := e.tokens.Login(e.ctx, "ann", "password1")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	stored := e.reload(t, u.ID)
	assert.Equal(t, pair.AccessToken, stored.LastAccessToken)
	assert.Equal(t, pair.RefreshToken, stored.RefreshToken)
	assert.WithinDuration(t, pair.RefreshExpires, stored.RefreshTokenExpiry, time.Millisecond)

	claims, err := e.tokens.Validate(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ann", claims.Name)
	assert.Equal(t, []string{model.RoleUser}, claims.Roles)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ann")

	_, err := e.tokens.Login(e.ctx, "ann", "wrong-password")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = e.tokens.Login(e.ctx, "nobody", "password1")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRegisterValidatesAndRejectsDuplicates(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ann")

	_, err := e.tokens.Register(e.ctx, "ann", "other@example.com", "password1")
	assert.ErrorIs(t, err, repository.ErrConflict)
	_, err = e.tokens.Register(e.ctx, "bob", "not-an-email", "password1")
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = e.tokens.Register(e.ctx, "bob", "bob@example.com", "123")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestRefreshSucceedsAtMostOncePerPair(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ann")
	pair, err := e.tokens.Login(e.ctx, "ann", "password1")
	require.NoError(t, err)

	next, err := e.tokens.Refresh(e.ctx, pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, next.AccessToken)

	_, err = e.tokens.Refresh(e.ctx, pair.AccessToken, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// The rotated pair keeps working.
	_, err = e.tokens.Refresh(e.ctx, next.AccessToken, next.RefreshToken)
	assert.NoError(t, err)
}

func TestConcurrentRefreshRotatesOnce(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ann")
	pair, err := e.tokens.Login(e.ctx, "ann", "password1")
	require.NoError(t, err)

	const callers = 4
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.tokens.Refresh(e.ctx, pair.AccessToken, pair.RefreshToken)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrUnauthenticated)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRefreshFailsWhenStoredExpiryPassed(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "ann")
	pair, err := e.tokens.Login(e.ctx, "ann", "password1")
	require.NoError(t, err)

	e.exec("UPDATE users SET refresh_token_expiry=? WHERE id=?", repository.Now().Add(-time.Minute), u.ID)

	_, err = e.tokens.Refresh(e.ctx, pair.AccessToken, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRefreshRejectsMismatchedRefreshToken(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ann")
	pair, err := e.tokens.Login(e.ctx, "ann", "password1")
	require.NoError(t, err)

	_, err = e.tokens.Refresh(e.ctx, pair.AccessToken, "bm90LXRoZS1yaWdodC10b2tlbg==")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRefreshAcceptsExpiredAccessToken(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "ann")
	pair, err := e.tokens.Login(e.ctx, "ann", "password1")
	require.NoError(t, err)

	signer := utils.Signer{Secret: []byte("test-secret-test-secret-test-secret"), Issuer: "forum", Audience: "forum"}
	expired, err := signer.NewAccessToken(u.ID, "ann", nil, time.Now().Add(-time.Hour), time.Minute)
	require.NoError(t, err)

	_, err = e.tokens.Refresh(e.ctx, expired.Token, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestValidateExpiredRejectsOtherAlgorithms(t *testing.T) {
	e := newEnv(t)
	claims := utils.AccessClaims{Name: "ann", RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "1",
		Issuer:    "forum",
		Audience:  jwt.ClaimStrings{"forum"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).
		SignedString([]byte("test-secret-test-secret-test-secret"))
	require.NoError(t, err)

	_, err = e.tokens.ValidateExpired(signed)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = e.tokens.Refresh(e.ctx, signed, "anything")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestEditPassword(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "ann")

	err := e.tokens.EditPassword(e.ctx, u.ID, "wrong-password", "newpassword")
	assert.ErrorIs(t, err, ErrBadRequest)
	err = e.tokens.EditPassword(e.ctx, 999, "password1", "newpassword")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, e.tokens.EditPassword(e.ctx, u.ID, "password1", "newpassword"))
	_, err = e.tokens.Login(e.ctx, "ann", "password1")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = e.tokens.Login(e.ctx, "ann", "newpassword")
	assert.NoError(t, err)

	logs, err := e.audits.ListByEntity(e.ctx, "User", strconv.FormatUint(u.ID, 10))
	require.NoError(t, err)
	var updated []audit.Entry
	for _, l := range logs {
		if l.Operation == audit.Updated {
			updated = append(updated, l)
		}
	}
	require.Len(t, updated, 1)
	assert.Equal(t, model.PasswordField, updated[0].FieldName)
	assert.Equal(t, model.PasswordMasked, updated[0].OldValue)
	assert.Equal(t, model.PasswordChanged, updated[0].NewValue)
}

func TestClaimReaders(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "ann")
	pair, err := e.tokens.Login(e.ctx, "ann", "password1")
	require.NoError(t, err)

	id, err := e.tokens.GetUserID(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
	name, err := e.tokens.GetUserName(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ann", name)

	_, err = e.tokens.GetUserID("garbage")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = e.tokens.GetUserName("a.b.c")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRevocationExpiryFollowsToken(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ann")
	pair, err := e.tokens.Login(e.ctx, "ann", "password1")
	require.NoError(t, err)

	assert.WithinDuration(t, pair.AccessExpires, e.tokens.RevocationExpiry(pair.AccessToken), time.Second)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), e.tokens.RevocationExpiry("tok123"), 5*time.Second)
}
