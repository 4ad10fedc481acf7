package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/forum-core/internal/logging"
	"github.com/iliyamo/forum-core/internal/revocation"
)

// Session cookie names.  Browsers carry the access token in CookieAccess and
// the refresh token in CookieRefresh.
const (
	CookieAccess  = "jwt"
	CookieRefresh = "refreshToken"
)

// CookieBridge copies the access token cookie into the Authorization header
// when the request carries no header of its own.
func CookieBridge() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			if r.Header.Get(echo.HeaderAuthorization) == "" {
				if ck, err := r.Cookie(CookieAccess); err == nil && ck.Value != "" {
					r.Header.Set(echo.HeaderAuthorization, "Bearer "+ck.Value)
				}
			}
			return next(c)
		}
	}
}

// StripRevoked removes credentials whose access token is in the revocation
// registry.  The request continues anonymously: the Authorization header
// and the session cookies are dropped from the request and the client is
// told to expire both cookies.  Authentication downstream then fails as if
// no token had been sent.
func StripRevoked(reg revocation.Registry, logger *slog.Logger) echo.MiddlewareFunc {
	logger = logging.OrDiscard(logger).With("component", "revocation")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			raw := bearer(r)
			if raw == "" || !reg.IsRevoked(r.Context(), raw) {
				return next(c)
			}

			r.Header.Del(echo.HeaderAuthorization)
			dropCookies(r, CookieAccess, CookieRefresh)
			for _, name := range []string{CookieAccess, CookieRefresh} {
				c.SetCookie(&http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
			}
			logger.Info("revoked credentials stripped", "path", r.URL.Path, "ip", c.RealIP())
			return next(c)
		}
	}
}

// dropCookies rewrites the request Cookie header without the named cookies.
func dropCookies(r *http.Request, names ...string) {
	cookies := r.Cookies()
	if len(cookies) == 0 {
		return
	}
	kept := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		drop := false
		for _, n := range names {
			if ck.Name == n {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, ck.String())
		}
	}
	if len(kept) == 0 {
		r.Header.Del("Cookie")
		return
	}
	r.Header.Set("Cookie", strings.Join(kept, "; "))
}
