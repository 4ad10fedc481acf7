package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/forum-core/internal/model"
)

// TopicSearchQuery defines filters & pagination for listing topics.
type TopicSearchQuery struct {
	Title    string
	State    model.TopicState
	Status   model.TopicStatus
	AuthorID uint64
	Page     int
	PageSize int
}

// Search returns one page of topics matching q, newest first, and the total
// number of matches.
func (r *TopicRepo) Search(ctx context.Context, q TopicSearchQuery) ([]model.Topic, int64, error) {
	where := []string{}
	args := []any{}

	if q.Title != "" {
		where = append(where, "LOWER(t.title) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Title)+"%")
	}
	if q.State != "" {
		where = append(where, "t.state = ?")
		args = append(args, string(q.State))
	}
	if q.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, string(q.Status))
	}
	if q.AuthorID != 0 {
		where = append(where, "t.author_id = ?")
		args = append(args, q.AuthorID)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM topics t WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := max(q.PageSize, 1)
	offset := (max(q.Page, 1) - 1) * limit
	dataSQL := "SELECT " + topicColumns + " FROM topics t WHERE " + cond +
		" ORDER BY t.created_at DESC, t.id DESC LIMIT ? OFFSET ?"

	rows, err := r.DB.QueryContext(ctx, dataSQL, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Topic, 0, limit)
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
