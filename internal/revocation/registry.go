// Package revocation keeps the set of access tokens that must be treated
// as invalid before their natural expiry, such as the live session of a
// user who was just banned.
//
// A Registry is created by the composition root and injected wherever it
// is needed; there is no package-level instance.  Entries never outlive
// the token they revoke, so forgetting them (a process restart with the
// in-memory backend) only reopens a window that closes by itself when the
// token expires.
package revocation

import (
	"context"
	"time"
)

// Registry maps revoked access tokens to the user they were issued to.
// Implementations are safe for concurrent use; IsRevoked sits on the hot
// request path and never blocks on writers.
type Registry interface {
	// Revoke marks token as revoked until expiresAt.
	Revoke(ctx context.Context, token string, userID uint64, expiresAt time.Time) error
	// IsRevoked reports whether token is currently revoked.
	IsRevoked(ctx context.Context, token string) bool
	// Release drops every entry belonging to userID and returns how many
	// were removed.  Zero is not an error; callers decide whether it is
	// worth a warning.
	Release(ctx context.Context, userID uint64) (int, error)
	// Purge drops entries whose expiry is not after now and returns how
	// many were removed.
	Purge(ctx context.Context, now time.Time) int
}
