package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/forum-core/internal/logging"
	"github.com/iliyamo/forum-core/internal/service"
)

// UserHandler serves account audit trails.
type UserHandler struct {
	Users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{Users: users, logger: logging.OrDiscard(logger)}
}

// Logs returns the audit trail of the user in the path.
func (h *UserHandler) Logs(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	entries, err := h.Users.Logs(ctx, uid, id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, entries)
}
