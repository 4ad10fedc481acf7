package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/iliyamo/forum-core/internal/audit"
	"github.com/iliyamo/forum-core/internal/logging"
	"github.com/iliyamo/forum-core/internal/model"
	"github.com/iliyamo/forum-core/internal/repository"
)

// CommentService writes comments and keeps the per-topic comment counter
// in step with them.
type CommentService struct {
	store    *repository.Store
	topics   *repository.TopicRepo
	comments *repository.CommentRepo
	users    *repository.UserRepo
	audits   *repository.AuditRepo
	logger   *slog.Logger
}

// NewCommentService wires a CommentService.
func NewCommentService(
	store *repository.Store,
	topics *repository.TopicRepo,
	comments *repository.CommentRepo,
	users *repository.UserRepo,
	audits *repository.AuditRepo,
	logger *slog.Logger,
) *CommentService {
	return &CommentService{
		store:    store,
		topics:   topics,
		comments: comments,
		users:    users,
		audits:   audits,
		logger:   logging.OrDiscard(logger).With("component", "comments"),
	}
}

// Create adds a comment and increments the topic's counter in the same
// unit of work.  Inactive topics take no new comments.
func (s *CommentService) Create(ctx context.Context, authorID, topicID uint64, content string) (*model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrBadRequest)
	}
	c := &model.Comment{TopicID: topicID, AuthorID: authorID, Content: content}
	err := s.store.Save(ctx, func(uow *repository.UnitOfWork) error {
		t, err := s.topics.GetByIDTx(ctx, uow.Tx(), topicID)
		if err != nil {
			return err
		}
		if t.Status == model.StatusInactive {
			return fmt.Errorf("%w: you cannot comment on an inactive topic", ErrBadRequest)
		}
		if err := s.comments.CreateTx(ctx, uow.Tx(), c, uow.Now()); err != nil {
			return err
		}
		uow.Created(c.Snapshot())

		before := t.Snapshot()
		t.CommentCount++
		if err := s.topics.UpdateTx(ctx, uow.Tx(), t, uow.Now()); err != nil {
			return err
		}
		uow.Updated(before, t.Snapshot())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Update rewrites the content of a comment.  Only its author may edit it,
// and comments on inactive topics are frozen.
func (s *CommentService) Update(ctx context.Context, callerID, commentID uint64, content string) (*model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrBadRequest)
	}
	var out *model.Comment
	err := s.store.Save(ctx, func(uow *repository.UnitOfWork) error {
		c, err := s.comments.GetByIDTx(ctx, uow.Tx(), commentID)
		if err != nil {
			return err
		}
		if c.AuthorID != callerID {
			return fmt.Errorf("%w: you are not allowed to edit this comment", ErrForbidden)
		}
		t, err := s.topics.GetByIDTx(ctx, uow.Tx(), c.TopicID)
		if err != nil {
			return err
		}
		if t.Status == model.StatusInactive {
			return fmt.Errorf("%w: you cannot edit a comment on an inactive topic", ErrBadRequest)
		}
		before := c.Snapshot()
		c.Content = content
		if err := s.comments.UpdateTx(ctx, uow.Tx(), c, uow.Now()); err != nil {
			return err
		}
		uow.Updated(before, c.Snapshot())
		out = c
		return nil
	})
	return out, err
}

// Delete removes a comment.  Only its author or an admin may do so.
func (s *CommentService) Delete(ctx context.Context, callerID, commentID uint64) error {
	caller, err := s.users.GetByID(ctx, callerID)
	if err != nil {
		return err
	}
	return s.store.Save(ctx, func(uow *repository.UnitOfWork) error {
		c, err := s.comments.GetByIDTx(ctx, uow.Tx(), commentID)
		if err != nil {
			return err
		}
		if c.AuthorID != callerID && !caller.IsAdmin() {
			return fmt.Errorf("%w: you are not allowed to delete this comment", ErrForbidden)
		}
		if err := s.comments.DeleteTx(ctx, uow.Tx(), c.ID); err != nil {
			return err
		}
		t, err := s.topics.GetByIDTx(ctx, uow.Tx(), c.TopicID)
		if err != nil {
			return err
		}
		before := t.Snapshot()
		if t.CommentCount > 0 {
			t.CommentCount--
		}
		if err := s.topics.UpdateTx(ctx, uow.Tx(), t, uow.Now()); err != nil {
			return err
		}
		uow.Updated(before, t.Snapshot())
		return nil
	})
}

// ReevaluateCommentCount sets every topic's counter to its true number of
// comments and returns how many counters it corrected.  Only drifted
// topics are written.
func (s *CommentService) ReevaluateCommentCount(ctx context.Context) (int, error) {
	tallies, err := s.topics.CommentTallies(ctx)
	if err != nil {
		return 0, fmt.Errorf("tally comments: %w", err)
	}

	fixed := 0
	var errs []error
	for _, tally := range tallies {
		if !tally.Drifted() {
			continue
		}
		var corrected bool
		err := s.store.Save(ctx, func(uow *repository.UnitOfWork) error {
			t, err := s.topics.GetByIDTx(ctx, uow.Tx(), tally.TopicID)
			if err != nil {
				return err
			}
			// Recount under the transaction; the tally may be stale.
			actual, err := s.comments.CountByTopicTx(ctx, uow.Tx(), t.ID)
			if err != nil {
				return err
			}
			if t.CommentCount == actual {
				return nil
			}
			before := t.Snapshot()
			t.CommentCount = actual
			if err := s.topics.UpdateTx(ctx, uow.Tx(), t, uow.Now()); err != nil {
				return err
			}
			uow.Updated(before, t.Snapshot())
			corrected = true
			return nil
		})
		switch {
		case err == nil:
			if corrected {
				fixed++
				s.logger.Debug("comment counter corrected", "topic_id", tally.TopicID,
					"stored", tally.Stored, "actual", tally.Actual)
			}
		case errors.Is(err, repository.ErrNotFound):
			// deleted since the tally
		case errors.Is(err, repository.ErrConflict):
			s.logger.Warn("topic changed concurrently; skipping", "topic_id", tally.TopicID)
		default:
			errs = append(errs, fmt.Errorf("topic %d: %w", tally.TopicID, err))
		}
	}
	if fixed > 0 {
		s.logger.Info("reconciled comment counters", "count", fixed)
	}
	return fixed, errors.Join(errs...)
}

// Logs returns the audit trail of a comment.
func (s *CommentService) Logs(ctx context.Context, id uint64) ([]audit.Entry, error) {
	return s.audits.ListByEntity(ctx, "Comment", strconv.FormatUint(id, 10))
}
