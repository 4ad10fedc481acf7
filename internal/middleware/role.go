package middleware // middleware provides shared request processing for handlers

import (
	"net/http" // http package defines standard HTTP status codes
	"strconv"

	"github.com/labstack/echo/v4" // echo provides middleware chaining and context
)

// RequireRole returns a middleware function that enforces that the
// authenticated user holds at least one of the specified roles.  It assumes
// JWTAuth has already stored the role claims in the context.  Requests
// without a matching role are aborted with 403 Forbidden.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, r := range Roles(c) {
				if allowed[r] {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
	}
}

// RequireSelfOrRole lets a request through when the path parameter param
// names the authenticated user, or when the user holds one of roles.  Mount
// it in front of NewResponseCache, which answers hits without reaching the
// handler.
func RequireSelfOrRole(param string, roles ...string) echo.MiddlewareFunc {
	byRole := RequireRole(roles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		guarded := byRole(next)
		return func(c echo.Context) error {
			if id, ok := UserID(c); ok && c.Param(param) == strconv.FormatUint(id, 10) {
				return next(c)
			}
			return guarded(c)
		}
	}
}
