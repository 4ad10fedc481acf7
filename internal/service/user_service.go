package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/iliyamo/forum-core/internal/audit"
	"github.com/iliyamo/forum-core/internal/logging"
	"github.com/iliyamo/forum-core/internal/repository"
)

// UserService exposes the audit trail of accounts.  Bans, lifts and
// password changes all leave rows there.
type UserService struct {
	users  *repository.UserRepo
	audits *repository.AuditRepo
	logger *slog.Logger
}

// NewUserService wires a UserService.
func NewUserService(users *repository.UserRepo, audits *repository.AuditRepo, logger *slog.Logger) *UserService {
	return &UserService{
		users:  users,
		audits: audits,
		logger: logging.OrDiscard(logger).With("component", "users"),
	}
}

// Logs returns the audit trail of userID.  Users may read their own trail;
// everyone else's requires the Admin role.
func (s *UserService) Logs(ctx context.Context, callerID, userID uint64) ([]audit.Entry, error) {
	if callerID != userID {
		caller, err := s.users.GetByID(ctx, callerID)
		if err != nil {
			return nil, err
		}
		if !caller.IsAdmin() {
			return nil, fmt.Errorf("%w: you may only read your own logs", ErrForbidden)
		}
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	entries, err := s.audits.ListByEntity(ctx, "User", strconv.FormatUint(userID, 10))
	if entries == nil && err == nil {
		entries = []audit.Entry{}
	}
	return entries, err
}
