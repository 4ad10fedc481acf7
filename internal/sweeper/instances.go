package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper names, also used as the source of the events they cause.
const (
	BanExpiryName       = "ban-expiry"
	TopicArchivalName   = "topic-archival"
	CommentCountName    = "comment-count"
	RevocationPurgeName = "revocation-purge"
)

// BanExpirer lifts bans whose end date has passed.
type BanExpirer interface {
	RevokeExpiredBans(ctx context.Context, source string) (int, error)
}

// TopicArchiver archives topics that went quiet.
type TopicArchiver interface {
	ArchiveOldTopics(ctx context.Context, source string) (int, error)
}

// CommentReconciler corrects drifted comment counters.
type CommentReconciler interface {
	ReevaluateCommentCount(ctx context.Context) (int, error)
}

// Purger drops naturally expired revocations.
type Purger interface {
	Purge(ctx context.Context, now time.Time) int
}

// NewBanExpiry lifts expired bans every interval.
func NewBanExpiry(bans BanExpirer, every time.Duration, logger *slog.Logger) *Sweeper {
	return New(BanExpiryName, every, func(ctx context.Context) error {
		_, err := bans.RevokeExpiredBans(ctx, BanExpiryName)
		return err
	}, WithLogger(logger))
}

// NewTopicArchival archives quiet topics every interval.
func NewTopicArchival(topics TopicArchiver, every time.Duration, logger *slog.Logger) *Sweeper {
	return New(TopicArchivalName, every, func(ctx context.Context) error {
		_, err := topics.ArchiveOldTopics(ctx, TopicArchivalName)
		return err
	}, WithLogger(logger))
}

// NewCommentCount reconciles comment counters: first after one interval,
// then every interval.
func NewCommentCount(comments CommentReconciler, every time.Duration, logger *slog.Logger) *Sweeper {
	return New(CommentCountName, every, func(ctx context.Context) error {
		_, err := comments.ReevaluateCommentCount(ctx)
		return err
	}, WithLogger(logger))
}

// NewRevocationPurge drops expired revocation entries every interval.
func NewRevocationPurge(registry Purger, every time.Duration, logger *slog.Logger) *Sweeper {
	var s *Sweeper
	s = New(RevocationPurgeName, every, func(ctx context.Context) error {
		if n := registry.Purge(ctx, time.Now()); n > 0 {
			s.logger.Debug("purged expired revocations", "count", n)
		}
		return nil
	}, WithLogger(logger))
	return s
}
