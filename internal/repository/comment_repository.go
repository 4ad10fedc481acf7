package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/forum-core/internal/model"
)

// CommentRepo persists comments.  It never touches the topic's counter;
// keeping topics.comment_count in step is the caller's job.
type CommentRepo struct{ DB *sql.DB }

func NewCommentRepo(db *sql.DB) *CommentRepo { return &CommentRepo{DB: db} }

// CreateTx inserts c and populates its id and timestamps.
func (r *CommentRepo) CreateTx(ctx context.Context, tx *sql.Tx, c *model.Comment, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO comments (topic_id, author_id, content, created_at, modified_at) VALUES (?,?,?,?,?)`,
		c.TopicID, c.AuthorID, c.Content, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	c.CreatedAt, c.ModifiedAt = now, now
	c.Version = 1
	return nil
}

// UpdateTx writes the content of c, guarded by its version.
func (r *CommentRepo) UpdateTx(ctx context.Context, tx *sql.Tx, c *model.Comment, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE comments SET content=?, modified_at=?, version=version+1 WHERE id=? AND version=?",
		c.Content, now, c.ID, c.Version)
	if err != nil {
		return err
	}
	if err := checkVersioned(res); err != nil {
		return err
	}
	c.Version++
	c.ModifiedAt = now
	return nil
}

// GetByIDTx fetches a comment inside an open transaction.
func (r *CommentRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Comment, error) {
	var c model.Comment
	err := tx.QueryRowContext(ctx,
		`SELECT id, topic_id, author_id, content, created_at, modified_at, version FROM comments WHERE id=? LIMIT 1`, id).
		Scan(&c.ID, &c.TopicID, &c.AuthorID, &c.Content, &c.CreatedAt, &c.ModifiedAt, &c.Version)
	if err != nil {
		return nil, noRows(err)
	}
	c.CreatedAt, c.ModifiedAt = c.CreatedAt.UTC(), c.ModifiedAt.UTC()
	return &c, nil
}

// DeleteTx removes a comment.  ErrNotFound when it is already gone.
func (r *CommentRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM comments WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByTopic returns the true number of comment rows of a topic.
func (r *CommentRepo) CountByTopic(ctx context.Context, topicID uint64) (uint32, error) {
	return countByTopic(ctx, r.DB, topicID)
}

// CountByTopicTx is CountByTopic inside an open transaction.
func (r *CommentRepo) CountByTopicTx(ctx context.Context, tx *sql.Tx, topicID uint64) (uint32, error) {
	return countByTopic(ctx, tx, topicID)
}

func countByTopic(ctx context.Context, q Querier, topicID uint64) (uint32, error) {
	var n uint32
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM comments WHERE topic_id=?", topicID).Scan(&n)
	return n, err
}
