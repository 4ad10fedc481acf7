// Package queue carries moderation events over RabbitMQ: a publisher used
// by the services and a background consumer that keeps a moderation log.
package queue

import "time"

// QueueName is the durable queue every moderation event is routed to.
const QueueName = "moderation.events"

// Event kinds.
const (
	KindBanCreated    = "ban.created"
	KindBanLifted     = "ban.lifted"
	KindTopicArchived = "topic.archived"
)

// ModerationEvent is published after a moderation change has been
// committed.  It carries enough context for downstream consumers to log
// or notify without querying the primary database.
type ModerationEvent struct {
	Kind       string    `json:"kind"`
	UserID     uint64    `json:"user_id,omitempty"`
	BanID      uint64    `json:"ban_id,omitempty"`
	TopicID    uint64    `json:"topic_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	BanEndDate string    `json:"ban_end_date,omitempty"`
	Source     string    `json:"source"` // "request" or the sweeper name
	OccurredAt time.Time `json:"occurred_at"`
}
