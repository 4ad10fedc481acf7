package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/forum-core/internal/logging"
	"github.com/iliyamo/forum-core/internal/model"
	"github.com/iliyamo/forum-core/internal/repository"
	"github.com/iliyamo/forum-core/internal/utils"
)

// TokenConfig carries the signing parameters and lifetimes.
type TokenConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
}

// TokenPair is what clients receive after login or refresh.
type TokenPair struct {
	AccessToken    string    `json:"accessToken"`
	RefreshToken   string    `json:"refreshToken"`
	AccessExpires  time.Time `json:"accessExpires"`
	RefreshExpires time.Time `json:"refreshExpires"`
}

// TokenService mints, validates and rotates session credentials.  It keeps
// no per-user state: every operation takes the user or token it works on,
// so one instance serves all requests concurrently.
type TokenService struct {
	store  *repository.Store
	users  *repository.UserRepo
	signer utils.Signer
	cfg    TokenConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewTokenService wires a TokenService.
func NewTokenService(store *repository.Store, users *repository.UserRepo, cfg TokenConfig, logger *slog.Logger) *TokenService {
	return &TokenService{
		store:  store,
		users:  users,
		signer: utils.Signer{Secret: []byte(cfg.Secret), Issuer: cfg.Issuer, Audience: cfg.Audience},
		cfg:    cfg,
		logger: logging.OrDiscard(logger).With("component", "tokens"),
		now:    repository.Now,
	}
}

// IssueTokenPair mints a new access token and refresh token for user and
// persists the refresh token, its expiry and the access token onto the
// user row.  The write is guarded by user.Version, so two rotations racing
// from the same loaded user cannot both succeed.
func (s *TokenService) IssueTokenPair(ctx context.Context, user *model.User) (TokenPair, error) {
	now := s.now()
	access, err := s.signer.NewAccessToken(user.ID, user.Username, user.Roles, now, s.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := utils.NewRefreshToken(now, s.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("refresh token: %w", err)
	}

	next := *user
	next.LastAccessToken = access.Token
	next.RefreshToken = refresh.Raw
	next.RefreshTokenExpiry = refresh.Exp
	err = s.store.Save(ctx, func(uow *repository.UnitOfWork) error {
		if err := s.users.UpdateTx(ctx, uow.Tx(), &next, uow.Now()); err != nil {
			return err
		}
		uow.Updated(user.Snapshot(), next.Snapshot())
		return nil
	})
	if err != nil {
		return TokenPair{}, err
	}
	*user = next
	return TokenPair{
		AccessToken:    access.Token,
		RefreshToken:   refresh.Raw,
		AccessExpires:  access.Exp,
		RefreshExpires: refresh.Exp,
	}, nil
}

// ValidateExpired checks signature, algorithm, issuer and audience of
// token while ignoring its expiry.  It exists for refresh only.
func (s *TokenService) ValidateExpired(token string) (*utils.AccessClaims, error) {
	claims, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return claims, nil
}

// Validate is ValidateExpired with expiry enforced.
func (s *TokenService) Validate(token string) (*utils.AccessClaims, error) {
	claims, err := s.signer.Parse(token, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return claims, nil
}

// Refresh rotates a pair.  The access token may be expired but must be
// genuine; the refresh token must equal the one stored for its subject and
// must not have expired.  After success the old refresh token is useless.
func (s *TokenService) Refresh(ctx context.Context, accessToken, refreshToken string) (TokenPair, error) {
	claims, err := s.ValidateExpired(accessToken)
	if err != nil {
		return TokenPair{}, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, ErrUnauthenticated
		}
		return TokenPair{}, err
	}
	if user.RefreshToken == "" ||
		subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(refreshToken)) != 1 {
		return TokenPair{}, fmt.Errorf("%w: refresh token mismatch", ErrUnauthenticated)
	}
	if !user.RefreshTokenExpiry.After(s.now()) {
		return TokenPair{}, fmt.Errorf("%w: refresh token expired", ErrUnauthenticated)
	}
	if user.IsBanned {
		return TokenPair{}, fmt.Errorf("%w: user is banned", ErrForbidden)
	}

	pair, err := s.IssueTokenPair(ctx, user)
	if errors.Is(err, repository.ErrConflict) {
		// Someone else rotated (or otherwise changed) the user first.
		s.logger.Warn("refresh lost a concurrent rotation", "user_id", user.ID)
		return TokenPair{}, fmt.Errorf("%w: refresh token already used", ErrUnauthenticated)
	}
	return pair, err
}

// Register creates a user holding the User role.
func (s *TokenService) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	username, email = strings.TrimSpace(username), strings.TrimSpace(email)
	switch {
	case username == "" || len(username) > 64:
		return nil, fmt.Errorf("%w: username must be 1-64 characters", ErrBadRequest)
	case !strings.Contains(email, "@") || len(email) > 80:
		return nil, fmt.Errorf("%w: invalid email", ErrBadRequest)
	case len(password) < 6:
		return nil, fmt.Errorf("%w: password must be at least 6 characters", ErrBadRequest)
	}
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	u := &model.User{Username: username, Email: email, PasswordHash: hash, Roles: []string{model.RoleUser}}
	err = s.store.Save(ctx, func(uow *repository.UnitOfWork) error {
		if err := s.users.CreateTx(ctx, uow.Tx(), u, uow.Now()); err != nil {
			return err
		}
		uow.Created(u.Snapshot())
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, fmt.Errorf("%w: username or email already taken", repository.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Login verifies credentials and issues a fresh pair.  Banned users are
// refused even with the right password.
func (s *TokenService) Login(ctx context.Context, username, password string) (TokenPair, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
		}
		return TokenPair{}, err
	}
	if !utils.VerifyPassword(user.PasswordHash, password) {
		return TokenPair{}, fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	}
	if user.IsBanned {
		return TokenPair{}, fmt.Errorf("%w: user is banned", ErrForbidden)
	}
	return s.IssueTokenPair(ctx, user)
}

// EditPassword replaces the password after checking the old one.
func (s *TokenService) EditPassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	if len(newPassword) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrBadRequest)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.VerifyPassword(user.PasswordHash, oldPassword) {
		return fmt.Errorf("%w: old password is incorrect", ErrBadRequest)
	}
	hash, err := utils.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	return s.store.Save(ctx, func(uow *repository.UnitOfWork) error {
		user.PasswordHash = hash
		if err := s.users.UpdateTx(ctx, uow.Tx(), user, uow.Now()); err != nil {
			return err
		}
		uow.Updated(user.PasswordSnapshots())
		return nil
	})
}

// GetUserID reads the subject of token without verifying it.
func (s *TokenService) GetUserID(token string) (uint64, error) {
	claims, err := utils.ReadUnverified(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	id, err := claims.UserID()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return id, nil
}

// GetUserName reads the name claim of token without verifying it.
func (s *TokenService) GetUserName(token string) (string, error) {
	claims, err := utils.ReadUnverified(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Name == "" {
		return "", fmt.Errorf("%w: token has no name", ErrUnauthenticated)
	}
	return claims.Name, nil
}

// RevocationExpiry returns how long a revocation of token must be kept:
// the token's own expiry when it is a genuine access token, otherwise a
// full access lifetime from now.
func (s *TokenService) RevocationExpiry(token string) time.Time {
	if claims, err := s.signer.Parse(token, false); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return s.now().Add(s.cfg.AccessTTL)
}
