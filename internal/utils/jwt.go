package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"     // secure random number generation
	"encoding/base64" // refresh token encoding
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
	"github.com/google/uuid"       // unique token ids (jti)
)

// ErrInvalidToken is returned for any token that cannot be trusted or read:
// bad signature, unexpected algorithm, wrong issuer or audience, expiry
// (when enforced) or a malformed payload.
var ErrInvalidToken = errors.New("invalid token")

// RefreshTokenBytes is the amount of random data behind a refresh token.
const RefreshTokenBytes = 32

// AccessClaims is the payload of an access token.  The subject carries
// the user id in decimal form.
type AccessClaims struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *AccessClaims) UserID() (uint64, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}

// HasRole reports whether the token grants role.
func (c *AccessClaims) HasRole(role string) bool { return slices.Contains(c.Roles, role) }

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp.  Access tokens are short‑lived and sent in the Authorization
// header (or the jwt cookie) when calling protected endpoints.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// RefreshToken is an opaque long‑lived secret used to obtain a new pair.
// Raw is the standard base64 form handed to the client and stored on the
// user row; Exp records when it stops being accepted.
type RefreshToken struct {
	Raw string    // base64 token string
	Exp time.Time // UTC expiration time
}

// Signer builds and verifies HS256 access tokens for one issuer/audience
// pair.  It holds no per-request state and is safe for concurrent use.
type Signer struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// NewAccessToken builds and signs an HS256 JWT for a user.  The claims
// are sub (user id), name, roles, iat, exp, iss, aud and a random jti so
// two tokens minted in the same second never collide.
func (s Signer) NewAccessToken(userID uint64, name string, roles []string, now time.Time, ttl time.Duration) (AccessToken, error) {
	now = now.UTC()
	exp := now.Add(ttl)
	claims := AccessClaims{
		Name:  name,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			Issuer:    s.Issuer,
			Audience:  jwt.ClaimStrings{s.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	// Sign with the shared secret; only HS256 is ever produced.
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// Parse verifies signature, algorithm, issuer and audience.  Expiry is
// enforced only when checkExpiry is true; refresh needs the identity of an
// access token that has already expired.
func (s Signer) Parse(token string, checkExpiry bool) (*AccessClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if checkExpiry {
		opts = append(opts,
			jwt.WithIssuer(s.Issuer),
			jwt.WithAudience(s.Audience),
			jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &AccessClaims{}
	t, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, s.keyFunc)
	if err != nil || !t.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !checkExpiry {
		// Claims validation was skipped as a whole; re-check the parts that
		// still matter.
		if claims.Issuer != s.Issuer {
			return nil, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
		}
		if !slices.Contains(claims.Audience, s.Audience) {
			return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
		}
	}
	return claims, nil
}

func (s Signer) keyFunc(t *jwt.Token) (any, error) {
	// Guard against algorithm substitution: the method must be HMAC and,
	// more narrowly, HS256.
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return s.Secret, nil
}

// ReadUnverified decodes the claims of token without checking the
// signature.  It is only for display helpers that run after the request
// has already been authenticated.
func ReadUnverified(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// NewRefreshToken returns RefreshTokenBytes of secure random data encoded
// with standard base64, expiring ttl after now.
func NewRefreshToken(now time.Time, ttl time.Duration) (RefreshToken, error) {
	buf := make([]byte, RefreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: base64.StdEncoding.EncodeToString(buf),
		Exp: now.UTC().Add(ttl),
	}, nil
}
