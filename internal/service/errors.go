// Package service implements the forum's session and moderation logic on
// top of the repositories: token issuance and rotation, bans and their
// revocations, topic archival and comment counters.
package service

import "errors"

// ErrUnauthenticated covers bad credentials and any token that cannot be
// trusted: forged, tampered, expired, unexpected algorithm, or a refresh
// token that does not match or has expired.  It is never retried.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrBadRequest is returned for input that fails validation.
var ErrBadRequest = errors.New("bad request")

// ErrForbidden is returned when the caller may not perform the action.
var ErrForbidden = errors.New("forbidden")
