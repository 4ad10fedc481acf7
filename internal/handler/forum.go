package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/forum-core/internal/logging"
	"github.com/iliyamo/forum-core/internal/middleware"
	"github.com/iliyamo/forum-core/internal/model"
	"github.com/iliyamo/forum-core/internal/repository"
	"github.com/iliyamo/forum-core/internal/service"
)

// ForumHandler serves topics and comments.
type ForumHandler struct {
	Topics   *service.TopicService
	Comments *service.CommentService
	logger   *slog.Logger
}

func NewForumHandler(topics *service.TopicService, comments *service.CommentService, logger *slog.Logger) *ForumHandler {
	return &ForumHandler{Topics: topics, Comments: comments, logger: logging.OrDiscard(logger)}
}

type topicReq struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type stateReq struct {
	Confirmed *bool `json:"confirmed"`
}

type commentReq struct {
	TopicID uint64 `json:"topic_id"`
	Content string `json:"content"`
}

// CreateTopic opens a topic authored by the caller.
func (h *ForumHandler) CreateTopic(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	var req topicReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	t, err := h.Topics.Create(ctx, uid, req.Title, req.Content)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, t)
}

// SearchTopics lists topics.  Query parameters: title (substring), state,
// status, author, page, page_size.  Only admins may list topics that are
// not shown yet.
func (h *ForumHandler) SearchTopics(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	ps, _ := strconv.Atoi(c.QueryParam("page_size"))
	if ps < 1 {
		ps = 20
	}
	if ps > 100 {
		ps = 100
	}
	author, _ := strconv.ParseUint(c.QueryParam("author"), 10, 64)

	q := repository.TopicSearchQuery{
		Title:    strings.TrimSpace(c.QueryParam("title")),
		State:    model.TopicState(c.QueryParam("state")),
		Status:   model.TopicStatus(c.QueryParam("status")),
		AuthorID: author,
		Page:     page,
		PageSize: ps,
	}
	if !middleware.HasRole(c, model.RoleAdmin) {
		q.State = model.StateShow
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	items, total, err := h.Topics.Search(ctx, q)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":      items,
		"total":     total,
		"page":      page,
		"page_size": ps,
	})
}

// GetTopic returns a topic by id.
func (h *ForumHandler) GetTopic(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	t, err := h.Topics.Get(ctx, id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, t)
}

// ChangeTopicState confirms or rejects a topic.  The body is
// {"confirmed": true|false}.
func (h *ForumHandler) ChangeTopicState(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	var req stateReq
	if err := c.Bind(&req); err != nil || req.Confirmed == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "confirmed is required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	t, err := h.Topics.ChangeState(ctx, id, *req.Confirmed)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, t)
}

// TopicLogs returns the audit trail of a topic.
func (h *ForumHandler) TopicLogs(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	entries, err := h.Topics.Logs(ctx, id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, entries)
}

// CreateComment posts a comment on an active topic.
func (h *ForumHandler) CreateComment(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	var req commentReq
	if err := c.Bind(&req); err != nil || req.TopicID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "topic_id and content required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	cm, err := h.Comments.Create(ctx, uid, req.TopicID, req.Content)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, cm)
}

type commentEditReq struct {
	Content string `json:"content"`
}

// UpdateComment rewrites the caller's own comment.
func (h *ForumHandler) UpdateComment(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	var req commentEditReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	cm, err := h.Comments.Update(ctx, uid, id, req.Content)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, cm)
}

// DeleteComment removes a comment written by the caller, or any comment
// when the caller is an admin.
func (h *ForumHandler) DeleteComment(c echo.Context) error {
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

	if err := h.Comments.Delete(ctx, uid, id); err != nil {
		return writeError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CommentLogs returns the audit trail of a comment.
func (h *ForumHandler) CommentLogs(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	entries, err := h.Comments.Logs(ctx, id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, entries)
}
