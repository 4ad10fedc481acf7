package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/forum-core/internal/audit"
	"github.com/iliyamo/forum-core/internal/logging"
	"github.com/iliyamo/forum-core/internal/model"
	"github.com/iliyamo/forum-core/internal/queue"
	"github.com/iliyamo/forum-core/internal/repository"
)

// TopicService owns topic writes and the archival of quiet topics.
type TopicService struct {
	store        *repository.Store
	topics       *repository.TopicRepo
	audits       *repository.AuditRepo
	publisher    queue.Publisher
	archiveAfter time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewTopicService wires a TopicService.  Topics quiet for archiveAfterDays
// are archived by ArchiveOldTopics.
func NewTopicService(
	store *repository.Store,
	topics *repository.TopicRepo,
	audits *repository.AuditRepo,
	publisher queue.Publisher,
	archiveAfterDays int,
	logger *slog.Logger,
) *TopicService {
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	return &TopicService{
		store:        store,
		topics:       topics,
		audits:       audits,
		publisher:    publisher,
		archiveAfter: time.Duration(archiveAfterDays) * 24 * time.Hour,
		logger:       logging.OrDiscard(logger).With("component", "topics"),
		now:          repository.Now,
	}
}

// Create opens a new Pending, Active topic.
func (s *TopicService) Create(ctx context.Context, authorID uint64, title, content string) (*model.Topic, error) {
	title, content = strings.TrimSpace(title), strings.TrimSpace(content)
	if title == "" || len(title) > 80 {
		return nil, fmt.Errorf("%w: title must be 1-80 characters", ErrBadRequest)
	}
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrBadRequest)
	}
	t := &model.Topic{Title: title, Content: content, AuthorID: authorID}
	err := s.store.Save(ctx, func(uow *repository.UnitOfWork) error {
		if err := s.topics.CreateTx(ctx, uow.Tx(), t, uow.Now()); err != nil {
			return err
		}
		uow.Created(t.Snapshot())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ChangeState confirms (Show) or rejects (Hide) a topic.
func (s *TopicService) ChangeState(ctx context.Context, id uint64, confirmed bool) (*model.Topic, error) {
	state := model.StateHide
	if confirmed {
		state = model.StateShow
	}
	var out *model.Topic
	err := s.store.Save(ctx, func(uow *repository.UnitOfWork) error {
		t, err := s.topics.GetByIDTx(ctx, uow.Tx(), id)
		if err != nil {
			return err
		}
		before := t.Snapshot()
		t.State = state
		if err := s.topics.UpdateTx(ctx, uow.Tx(), t, uow.Now()); err != nil {
			return err
		}
		uow.Updated(before, t.Snapshot())
		out = t
		return nil
	})
	return out, err
}

// Get returns a topic by id.
func (s *TopicService) Get(ctx context.Context, id uint64) (*model.Topic, error) {
	return s.topics.GetByID(ctx, id)
}

// Search lists topics page by page.
func (s *TopicService) Search(ctx context.Context, q repository.TopicSearchQuery) ([]model.Topic, int64, error) {
	return s.topics.Search(ctx, q)
}

// ArchiveOldTopics marks Inactive every Active topic that has been quiet
// longer than the configured number of days, and returns how many it
// archived.  Each topic is archived in its own unit of work; topics that
// vanished or changed concurrently are skipped.
func (s *TopicService) ArchiveOldTopics(ctx context.Context, source string) (int, error) {
	cutoff := s.now().Add(-s.archiveAfter)
	s.logger.Debug("archiving quiet topics", "cutoff", cutoff)

	candidates, err := s.topics.ArchivableTopics(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list archivable topics: %w", err)
	}

	archived := 0
	var errs []error
	for _, c := range candidates {
		id := c.ID
		err := s.store.Save(ctx, func(uow *repository.UnitOfWork) error {
			t, err := s.topics.GetByIDTx(ctx, uow.Tx(), id)
			if err != nil {
				return err
			}
			if t.Status != model.StatusActive {
				return repository.ErrNotFound
			}
			before := t.Snapshot()
			t.Status = model.StatusInactive
			if err := s.topics.UpdateTx(ctx, uow.Tx(), t, uow.Now()); err != nil {
				return err
			}
			uow.Updated(before, t.Snapshot())
			return nil
		})
		switch {
		case err == nil:
			archived++
			s.publish(ctx, queue.ModerationEvent{Kind: queue.KindTopicArchived, TopicID: id, Source: source})
		case errors.Is(err, repository.ErrNotFound):
			s.logger.Debug("topic no longer archivable", "topic_id", id)
		case errors.Is(err, repository.ErrConflict):
			s.logger.Warn("topic changed concurrently; skipping", "topic_id", id)
		default:
			errs = append(errs, fmt.Errorf("topic %d: %w", id, err))
		}
	}
	if archived > 0 {
		s.logger.Info("archived topics", "count", archived)
	}
	return archived, errors.Join(errs...)
}

// Logs returns the audit trail of a topic.
func (s *TopicService) Logs(ctx context.Context, id uint64) ([]audit.Entry, error) {
	if _, err := s.topics.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.audits.ListByEntity(ctx, "Topic", strconv.FormatUint(id, 10))
}

func (s *TopicService) publish(ctx context.Context, ev queue.ModerationEvent) {
	ev.OccurredAt = s.now()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish moderation event", "kind", ev.Kind, "err", err)
	}
}
