package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/forum-core/internal/utils"
)

// TokenValidator verifies an access token and returns its claims.  The
// token service satisfies it.
type TokenValidator interface {
	Validate(token string) (*utils.AccessClaims, error)
}

// bearer extracts the raw token from an "Authorization: Bearer ..." header.
// It returns "" when the header is absent or uses another scheme.
func bearer(r *http.Request) string {
	auth := r.Header.Get(echo.HeaderAuthorization)
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the token's subject, name and role claims into the request
// context.  Signature, algorithm, issuer, audience and expiry are all
// checked by v.  Handlers read the identity back through UserID, UserName
// and Roles.
func JWTAuth(v TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearer(c.Request())
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := v.Validate(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			id, err := claims.UserID()
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			c.Set(KeyUserID, id)
			c.Set(KeyUserName, claims.Name)
			c.Set(KeyRoles, claims.Roles)
			c.Set(KeyClaims, claims)
			return next(c)
		}
	}
}
