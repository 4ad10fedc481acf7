package model

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/forum-core/internal/audit"
)

// Role names stored in the user_roles table.
const (
	RoleUser  = "User"
	RoleAdmin = "Admin"
)

// Password changes are audited under PasswordField with masked values so
// the hash never reaches the log.
const (
	PasswordField   = "Password"
	PasswordMasked  = "********"
	PasswordChanged = "changed"
)

// User represents an application user record as stored in the `users`
// table together with its role set from `user_roles`.
//
// Fields:
//
//	ID                 – primary key identifier of the user.
//	Username           – unique login name, carried in the access token "name" claim.
//	Email              – unique email address.
//	PasswordHash       – bcrypt hashed password.
//	Roles              – sorted role names (User, Admin).
//	IsBanned           – true iff a row in `bans` references this user.
//	LastAccessToken    – the most recently issued access token string.
//	RefreshToken       – current opaque refresh token, empty when none was issued.
//	RefreshTokenExpiry – when RefreshToken stops being accepted.
//	Version            – optimistic concurrency counter.
type User struct {
	ID                 uint64
	Username           string
	Email              string
	PasswordHash       string
	Roles              []string
	IsBanned           bool
	LastAccessToken    string
	RefreshToken       string
	RefreshTokenExpiry time.Time
	CreatedAt          time.Time
	ModifiedAt         time.Time
	Version            uint64
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// WithRole returns a copy of the role set including role, sorted.
func (u *User) WithRole(role string) []string {
	out := slices.Clone(u.Roles)
	if !slices.Contains(out, role) {
		out = append(out, role)
	}
	slices.Sort(out)
	return out
}

// WithoutRole returns a copy of the role set without role.
func (u *User) WithoutRole(role string) []string {
	return slices.DeleteFunc(slices.Clone(u.Roles), func(r string) bool { return r == role })
}

// IsAdmin reports whether the user holds the Admin role.
func (u *User) IsAdmin() bool { return u.HasRole(RoleAdmin) }

// Snapshot returns the audited fields of the user.  Credentials and
// session secrets are absent; see PasswordSnapshots.
func (u User) Snapshot() audit.Snapshot {
	return audit.Snapshot{
		Type: "User",
		ID:   strconv.FormatUint(u.ID, 10),
		Fields: []audit.Field{
			{Name: "UserName", Value: u.Username},
			{Name: "Email", Value: u.Email},
			{Name: "IsBanned", Value: strconv.FormatBool(u.IsBanned)},
			{Name: "Roles", Value: strings.Join(u.Roles, ",")},
		},
	}
}

// PasswordSnapshots returns a before/after pair that records a password
// change under PasswordField without revealing either hash.
func (u User) PasswordSnapshots() (before, after audit.Snapshot) {
	before, after = u.Snapshot(), u.Snapshot()
	before.Fields = append(before.Fields, audit.Field{Name: PasswordField, Value: PasswordMasked})
	after.Fields = append(after.Fields, audit.Field{Name: PasswordField, Value: PasswordChanged})
	return before, after
}
