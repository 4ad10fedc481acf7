package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/forum-core/internal/logging"
	"github.com/iliyamo/forum-core/internal/service"
)

// BanHandler exposes ban administration.  Every route is Admin-only; the
// router enforces that.
type BanHandler struct {
	Bans   *service.BanService
	logger *slog.Logger
}

func NewBanHandler(bans *service.BanService, logger *slog.Logger) *BanHandler {
	return &BanHandler{Bans: bans, logger: logging.OrDiscard(logger)}
}

// Create bans a user.  The body is {"user_id", "reason", "ban_end_date"}.
func (h *BanHandler) Create(c echo.Context) error {
	var in service.BanInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := h.Bans.Create(ctx, in)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// List returns every active ban.
func (h *BanHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	bans, err := h.Bans.List(ctx)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, bans)
}

// Get returns one ban by id.
func (h *BanHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := h.Bans.Get(ctx, id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, b)
}

// GetByUser returns the ban of a user.
func (h *BanHandler) GetByUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := h.Bans.GetByUser(ctx, id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Update changes the reason and end date of a ban.
func (h *BanHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	var in service.BanInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := h.Bans.Update(ctx, id, in)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Delete lifts a ban by ban id.
func (h *BanHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Bans.Delete(ctx, id); err != nil {
		return writeError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteByUser lifts the ban of a user.
func (h *BanHandler) DeleteByUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Bans.DeleteByUser(ctx, id); err != nil {
		return writeError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Logs returns the audit trail of a ban.
func (h *BanHandler) Logs(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	entries, err := h.Bans.Logs(ctx, id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, entries)
}
