package model

import (
	"strconv"
	"time"

	"github.com/iliyamo/forum-core/internal/audit"
)

// Comment mirrors the `comments` table.
type Comment struct {
	ID         uint64    `json:"id"`
	TopicID    uint64    `json:"topic_id"`
	AuthorID   uint64    `json:"author_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Version    uint64    `json:"-"`
}

// Snapshot returns the audited fields of the comment.
func (c Comment) Snapshot() audit.Snapshot {
	return audit.Snapshot{
		Type: "Comment",
		ID:   strconv.FormatUint(c.ID, 10),
		Fields: []audit.Field{
			{Name: "Content", Value: c.Content},
			{Name: "TopicId", Value: strconv.FormatUint(c.TopicID, 10)},
			{Name: "AuthorId", Value: strconv.FormatUint(c.AuthorID, 10)},
		},
	}
}
