package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/iliyamo/forum-core/internal/audit"
	"github.com/iliyamo/forum-core/internal/logging"
	"github.com/iliyamo/forum-core/internal/model"
	"github.com/iliyamo/forum-core/internal/queue"
	"github.com/iliyamo/forum-core/internal/repository"
	"github.com/iliyamo/forum-core/internal/revocation"
)

// SourceRequest marks events caused by an API call rather than a sweeper.
const SourceRequest = "request"

// BanInput is the writable part of a ban.
type BanInput struct {
	UserID     uint64    `json:"user_id"`
	Reason     string    `json:"reason"`
	BanEndDate time.Time `json:"ban_end_date"`
}

// BanService creates and lifts bans.  Creating a ban strips the User role,
// flags the user and revokes their last access token; lifting reverses all
// three.  Lifting happens on request or from the expiry sweeper.
type BanService struct {
	store     *repository.Store
	users     *repository.UserRepo
	bans      *repository.BanRepo
	audits    *repository.AuditRepo
	registry  revocation.Registry
	tokens    *TokenService
	publisher queue.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewBanService wires a BanService.  publisher may be nil.
func NewBanService(
	store *repository.Store,
	users *repository.UserRepo,
	bans *repository.BanRepo,
	audits *repository.AuditRepo,
	registry revocation.Registry,
	tokens *TokenService,
	publisher queue.Publisher,
	logger *slog.Logger,
) *BanService {
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	return &BanService{
		store:     store,
		users:     users,
		bans:      bans,
		audits:    audits,
		registry:  registry,
		tokens:    tokens,
		publisher: publisher,
		logger:    logging.OrDiscard(logger).With("component", "bans"),
		now:       repository.Now,
	}
}

func (s *BanService) validate(in BanInput) error {
	if len(in.Reason) > 100 {
		return fmt.Errorf("%w: reason must be at most 100 characters", ErrBadRequest)
	}
	if in.BanEndDate.IsZero() || in.BanEndDate.Before(s.now()) {
		return fmt.Errorf("%w: ban end date cannot be in the past", ErrBadRequest)
	}
	return nil
}

// Create bans a user.  Banning a user who is already banned fails with
// repository.ErrConflict and changes nothing.  The user's last access
// token is revoked once the ban has been committed.
func (s *BanService) Create(ctx context.Context, in BanInput) (*model.Ban, error) {
	if in.UserID == 0 {
		return nil, fmt.Errorf("%w: user_id is required", ErrBadRequest)
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}

	ban := &model.Ban{UserID: in.UserID, Reason: in.Reason, BanEndDate: in.BanEndDate.UTC().Truncate(time.Microsecond)}
	var lastToken string
	err := s.store.Save(ctx, func(uow *repository.UnitOfWork) error {
		user, err := s.users.GetByIDTx(ctx, uow.Tx(), in.UserID)
		if err != nil {
			return err
		}
		if user.IsBanned {
			return fmt.Errorf("%w: user is already banned", repository.ErrConflict)
		}
		before := user.Snapshot()
		user.IsBanned = true
		user.Roles = user.WithoutRole(model.RoleUser)
		if err := s.users.UpdateTx(ctx, uow.Tx(), user, uow.Now()); err != nil {
			return err
		}
		uow.Updated(before, user.Snapshot())

		if err := s.bans.CreateTx(ctx, uow.Tx(), ban, uow.Now()); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("%w: user is already banned", repository.ErrConflict)
			}
			return err
		}
		uow.Created(ban.Snapshot())
		lastToken = user.LastAccessToken
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := s.logger.With("ban_id", ban.ID, "user_id", ban.UserID)
	if lastToken != "" {
		if err := s.registry.Revoke(ctx, lastToken, ban.UserID, s.tokens.RevocationExpiry(lastToken)); err != nil {
			log.Error("revoke last access token", "err", err)
		}
	}
	log.Info("user banned", "until", ban.BanEndDate)
	s.publish(ctx, queue.ModerationEvent{
		Kind:       queue.KindBanCreated,
		UserID:     ban.UserID,
		BanID:      ban.ID,
		Reason:     ban.Reason,
		BanEndDate: model.FormatTime(ban.BanEndDate),
		Source:     SourceRequest,
	})
	return ban, nil
}

// Update rewrites reason and end date of a ban.
func (s *BanService) Update(ctx context.Context, id uint64, in BanInput) (*model.Ban, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	var out *model.Ban
	err := s.store.Save(ctx, func(uow *repository.UnitOfWork) error {
		ban, err := s.bans.GetByIDTx(ctx, uow.Tx(), id)
		if err != nil {
			return err
		}
		before := ban.Snapshot()
		ban.Reason = in.Reason
		ban.BanEndDate = in.BanEndDate.UTC().Truncate(time.Microsecond)
		if err := s.bans.UpdateTx(ctx, uow.Tx(), ban, uow.Now()); err != nil {
			return err
		}
		uow.Updated(before, ban.Snapshot())
		out = ban
		return nil
	})
	return out, err
}

// Delete lifts the ban with the given id.
func (s *BanService) Delete(ctx context.Context, id uint64) error {
	return s.lift(ctx, SourceRequest, func(uow *repository.UnitOfWork) (*model.Ban, error) {
		return s.bans.GetByIDTx(ctx, uow.Tx(), id)
	})
}

// DeleteByUser lifts the ban of a user.
func (s *BanService) DeleteByUser(ctx context.Context, userID uint64) error {
	return s.lift(ctx, SourceRequest, func(uow *repository.UnitOfWork) (*model.Ban, error) {
		return s.bans.GetByUserIDTx(ctx, uow.Tx(), userID)
	})
}

// lift deletes the ban found by find, restores the User role, clears the
// banned flag and finally releases the user's revocations.  A ban that is
// already gone yields repository.ErrNotFound.
func (s *BanService) lift(ctx context.Context, source string, find func(*repository.UnitOfWork) (*model.Ban, error)) error {
	var ban *model.Ban
	err := s.store.Save(ctx, func(uow *repository.UnitOfWork) error {
		var err error
		if ban, err = find(uow); err != nil {
			return err
		}
		if err := s.bans.DeleteTx(ctx, uow.Tx(), ban.ID); err != nil {
			return err
		}
		user, err := s.users.GetByIDTx(ctx, uow.Tx(), ban.UserID)
		if err != nil {
			return err
		}
		before := user.Snapshot()
		user.IsBanned = false
		user.Roles = user.WithRole(model.RoleUser)
		if err := s.users.UpdateTx(ctx, uow.Tx(), user, uow.Now()); err != nil {
			return err
		}
		uow.Updated(before, user.Snapshot())
		return nil
	})
	if err != nil {
		return err
	}

	log := s.logger.With("ban_id", ban.ID, "user_id", ban.UserID, "source", source)
	removed, err := s.registry.Release(ctx, ban.UserID)
	switch {
	case err != nil:
		log.Error("release revoked tokens", "err", err)
	case removed == 0:
		log.Warn("lifted ban had no revocation entry")
	}
	log.Info("ban lifted", "released", removed)
	s.publish(ctx, queue.ModerationEvent{Kind: queue.KindBanLifted, UserID: ban.UserID, BanID: ban.ID, Source: source})
	return nil
}

// RevokeExpiredBans lifts every ban whose end date has passed and returns
// how many were lifted.  Bans removed concurrently are skipped and lost
// races are logged; neither stops the pass.  Other failures are collected
// and returned after every ban has been tried.
func (s *BanService) RevokeExpiredBans(ctx context.Context, source string) (int, error) {
	expired, err := s.bans.ExpiredBefore(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired bans: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}
	s.logger.Info("found expired bans", "count", len(expired))

	lifted := 0
	var errs []error
	for _, b := range expired {
		id := b.ID
		err := s.lift(ctx, source, func(uow *repository.UnitOfWork) (*model.Ban, error) {
			return s.bans.GetByIDTx(ctx, uow.Tx(), id)
		})
		switch {
		case err == nil:
			lifted++
		case errors.Is(err, repository.ErrNotFound):
			s.logger.Debug("expired ban already gone", "ban_id", id)
		case errors.Is(err, repository.ErrConflict):
			s.logger.Warn("expired ban changed concurrently; skipping", "ban_id", id)
		default:
			errs = append(errs, fmt.Errorf("ban %d: %w", id, err))
		}
	}
	return lifted, errors.Join(errs...)
}

// Get returns a ban by id.
func (s *BanService) Get(ctx context.Context, id uint64) (*model.Ban, error) {
	return s.bans.GetByID(ctx, id)
}

// GetByUser returns the ban of a user.
func (s *BanService) GetByUser(ctx context.Context, userID uint64) (*model.Ban, error) {
	return s.bans.GetByUserID(ctx, userID)
}

// List returns every ban.
func (s *BanService) List(ctx context.Context) ([]model.Ban, error) {
	bans, err := s.bans.List(ctx)
	if bans == nil && err == nil {
		bans = []model.Ban{}
	}
	return bans, err
}

// Logs returns the audit trail of a ban.  It stays readable after the
// ban itself has been lifted.
func (s *BanService) Logs(ctx context.Context, id uint64) ([]audit.Entry, error) {
	return s.audits.ListByEntity(ctx, "Ban", strconv.FormatUint(id, 10))
}

func (s *BanService) publish(ctx context.Context, ev queue.ModerationEvent) {
	ev.OccurredAt = s.now()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish moderation event", "kind", ev.Kind, "err", err)
	}
}
