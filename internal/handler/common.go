package handler // handler defines http handlers

import (
	"context" // request-scoped deadlines for service calls
	"errors"  // errors.Is matches service and repository sentinels
	"fmt"
	"log/slog" // error logging for unexpected failures
	"net/http" // HTTP status codes
	"strconv"  // strconv converts path parameters to ids
	"time"     // handler timeout

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/forum-core/internal/middleware"
	"github.com/iliyamo/forum-core/internal/repository"
	"github.com/iliyamo/forum-core/internal/service"
)

// requestTimeout bounds every service call made from a handler.
const requestTimeout = 5 * time.Second

// reqCtx derives the context handed to services from the request.
func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// pathID parses the named path parameter as a positive id.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s", service.ErrBadRequest, name)
	}
	return id, nil
}

// callerID returns the authenticated user id.
func callerID(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, service.ErrUnauthenticated
	}
	return id, nil
}

// statusOf maps the domain sentinels onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": "..."}.  Messages of expected
// failures are passed through; anything unexpected is logged and hidden
// behind a generic message.
func writeError(c echo.Context, logger *slog.Logger, err error) error {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", c.Path(), "err", err)
		return c.JSON(status, echo.Map{"error": http.StatusText(status)})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}
