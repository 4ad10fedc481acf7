package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/forum-core/internal/logging"
)

// RequestLogger writes one log line per request.  5xx responses are logged at
// error level, 4xx at warn, everything else at info.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	logger = logging.OrDiscard(logger).With("component", "http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo render the error so the logged status is the real one
				c.Error(err)
			}

			status := c.Response().Status
			attrs := []any{
				"method", c.Request().Method,
				"path", c.Path(),
				"status", status,
				"latency", time.Since(start),
				"ip", c.RealIP(),
			}
			if id, ok := UserID(c); ok {
				attrs = append(attrs, "user_id", id)
			}
			switch {
			case status >= 500:
				if err != nil {
					attrs = append(attrs, "err", err)
				}
				logger.Error("request", attrs...)
			case status >= 400:
				logger.Warn("request", attrs...)
			default:
				logger.Info("request", attrs...)
			}
			return nil
		}
	}
}
