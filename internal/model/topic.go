package model

import (
	"strconv"
	"time"

	"github.com/iliyamo/forum-core/internal/audit"
)

// TopicState is the moderation state of a topic.
type TopicState string

const (
	StatePending TopicState = "Pending"
	StateShow    TopicState = "Show"
	StateHide    TopicState = "Hide"
)

// TopicStatus tells whether a topic still accepts activity.  Inactive
// topics are archived.
type TopicStatus string

const (
	StatusActive   TopicStatus = "Active"
	StatusInactive TopicStatus = "Inactive"
)

// Topic mirrors the `topics` table.  CommentCount is a denormalized counter
// maintained on comment create/delete and reconciled in the background.
type Topic struct {
	ID           uint64      `json:"id"`
	Title        string      `json:"title"`
	Content      string      `json:"content"`
	AuthorID     uint64      `json:"author_id"`
	State        TopicState  `json:"state"`
	Status       TopicStatus `json:"status"`
	CommentCount uint32      `json:"comment_count"`
	CreatedAt    time.Time   `json:"created_at"`
	ModifiedAt   time.Time   `json:"modified_at"`
	Version      uint64      `json:"-"`
}

// Snapshot returns the audited fields of the topic.
func (t Topic) Snapshot() audit.Snapshot {
	return audit.Snapshot{
		Type: "Topic",
		ID:   strconv.FormatUint(t.ID, 10),
		Fields: []audit.Field{
			{Name: "Title", Value: t.Title},
			{Name: "Content", Value: t.Content},
			{Name: "State", Value: string(t.State)},
			{Name: "Status", Value: string(t.Status)},
			{Name: "CommentCount", Value: strconv.FormatUint(uint64(t.CommentCount), 10)},
			{Name: "AuthorId", Value: strconv.FormatUint(t.AuthorID, 10)},
		},
	}
}
