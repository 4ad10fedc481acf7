package middleware

// identity.go defines the context keys the authentication middleware fills
// and the helpers handlers and other middleware use to read them back.  When
// no user is authenticated the helpers report so instead of panicking.

import (
	"slices"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/forum-core/internal/utils"
)

// Context keys set by JWTAuth.
const (
	KeyUserID   = "user_id"
	KeyUserName = "username"
	KeyRoles    = "roles"
	KeyClaims   = "claims"
)

// UserID returns the authenticated user's id.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(KeyUserID).(uint64)
	return id, ok && id != 0
}

// UserName returns the authenticated user's name claim.
func UserName(c echo.Context) string {
	s, _ := c.Get(KeyUserName).(string)
	return s
}

// Roles returns the role claims of the authenticated user, nil for guests.
func Roles(c echo.Context) []string {
	r, _ := c.Get(KeyRoles).([]string)
	return r
}

// HasRole reports whether the authenticated user carries role.
func HasRole(c echo.Context, role string) bool {
	return slices.Contains(Roles(c), role)
}

// Claims returns the verified access token claims, nil for guests.
func Claims(c echo.Context) *utils.AccessClaims {
	cl, _ := c.Get(KeyClaims).(*utils.AccessClaims)
	return cl
}

// userKey renders the caller for rate-limit keys; "anon" when no user is
// authenticated.
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
