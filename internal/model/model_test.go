package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/forum-core/internal/audit"
)

func TestUserRoleHelpersDoNotMutate(t *testing.T) {
	u := User{Roles: []string{RoleUser}}

	with := u.WithRole(RoleAdmin)
	without := u.WithoutRole(RoleUser)

	assert.Equal(t, []string{RoleAdmin, RoleUser}, with)
	assert.Empty(t, without)
	assert.Equal(t, []string{RoleUser}, u.Roles)
	assert.True(t, u.HasRole(RoleUser))
	assert.False(t, u.IsAdmin())
}

func TestUserSnapshotOmitsSecrets(t *testing.T) {
	u := User{ID: 3, Username: "ann", PasswordHash: "hash", RefreshToken: "r", LastAccessToken: "a"}
	for _, f := range u.Snapshot().Fields {
		assert.NotContains(t, []string{"hash", "r", "a"}, f.Value, f.Name)
	}
}

func TestPasswordSnapshotsDifferOnlyInMaskedField(t *testing.T) {
	u := User{ID: 3, Username: "ann", PasswordHash: "hash"}
	before, after := u.PasswordSnapshots()

	entries := audit.Diff(audit.Change{Op: audit.Updated, Before: before, After: after}, time.Now())

	require.Len(t, entries, 1)
	assert.Equal(t, PasswordField, entries[0].FieldName)
	assert.Equal(t, PasswordMasked, entries[0].OldValue)
	assert.Equal(t, PasswordChanged, entries[0].NewValue)
}

func TestBanExpired(t *testing.T) {
	now := time.Now()
	b := Ban{BanEndDate: now.Add(-time.Minute)}
	assert.True(t, b.Expired(now))
	b.BanEndDate = now.Add(time.Minute)
	assert.False(t, b.Expired(now))
}
