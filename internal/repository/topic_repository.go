package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/forum-core/internal/model"
)

// TopicRepo persists topics and answers the archival and reconciliation
// queries run by the background sweepers.
type TopicRepo struct{ DB *sql.DB }

func NewTopicRepo(db *sql.DB) *TopicRepo { return &TopicRepo{DB: db} }

const topicColumns = `t.id, t.title, t.content, t.author_id, t.state, t.status, t.comment_count,
	t.created_at, t.modified_at, t.version`

// CreateTx inserts t and populates its id, timestamps and version.
func (r *TopicRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Topic, now time.Time) error {
	if t.State == "" {
		t.State = model.StatePending
	}
	if t.Status == "" {
		t.Status = model.StatusActive
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO topics (title, content, author_id, state, status, comment_count, created_at, modified_at, version)
		 VALUES (?,?,?,?,?,?,?,?,1)`,
		t.Title, t.Content, nullID(t.AuthorID), string(t.State), string(t.Status), t.CommentCount, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	t.CreatedAt, t.ModifiedAt, t.Version = now, now, 1
	return nil
}

// UpdateTx writes every mutable column of t guarded by t.Version.
func (r *TopicRepo) UpdateTx(ctx context.Context, tx *sql.Tx, t *model.Topic, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE topics SET title=?, content=?, state=?, status=?, comment_count=?,
			modified_at=?, version=version+1
		 WHERE id=? AND version=?`,
		t.Title, t.Content, string(t.State), string(t.Status), t.CommentCount, now, t.ID, t.Version)
	if err != nil {
		return err
	}
	if err := checkVersioned(res); err != nil {
		return err
	}
	t.Version++
	t.ModifiedAt = now
	return nil
}

// GetByID fetches a topic by id.
func (r *TopicRepo) GetByID(ctx context.Context, id uint64) (*model.Topic, error) {
	return r.get(ctx, r.DB, id)
}

// GetByIDTx is GetByID inside an open transaction.
func (r *TopicRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Topic, error) {
	return r.get(ctx, tx, id)
}

func (r *TopicRepo) get(ctx context.Context, q Querier, id uint64) (*model.Topic, error) {
	row := q.QueryRowContext(ctx, "SELECT "+topicColumns+" FROM topics t WHERE t.id=? LIMIT 1", id)
	t, err := scanTopic(row)
	if err != nil {
		return nil, noRows(err)
	}
	return &t, nil
}

// ArchivableTopics returns Active topics that went quiet before cutoff:
// either they have no comments and were last modified before cutoff, or
// their newest comment was created before cutoff.  Inactive topics are
// never returned, so archiving is idempotent.
func (r *TopicRepo) ArchivableTopics(ctx context.Context, cutoff time.Time) ([]model.Topic, error) {
	cutoff = cutoff.UTC()
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+topicColumns+` FROM topics t
		 WHERE t.status = ?
		   AND (
		     (NOT EXISTS (SELECT 1 FROM comments c WHERE c.topic_id = t.id) AND t.modified_at < ?)
		     OR (SELECT MAX(c.created_at) FROM comments c WHERE c.topic_id = t.id) < ?
		   )
		 ORDER BY t.id`,
		string(model.StatusActive), cutoff, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CommentTally pairs a topic's stored counter with its true comment count.
type CommentTally struct {
	TopicID uint64
	Stored  uint32
	Actual  uint32
}

// Drifted reports whether the stored counter disagrees with the rows.
func (c CommentTally) Drifted() bool { return c.Stored != c.Actual }

// CommentTallies returns one tally per topic.
func (r *TopicRepo) CommentTallies(ctx context.Context) ([]CommentTally, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT t.id, t.comment_count,
		        (SELECT COUNT(*) FROM comments c WHERE c.topic_id = t.id)
		 FROM topics t ORDER BY t.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CommentTally
	for rows.Next() {
		var c CommentTally
		if err := rows.Scan(&c.TopicID, &c.Stored, &c.Actual); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanTopic(s scanner) (model.Topic, error) {
	var (
		t      model.Topic
		author sql.NullInt64
	)
	err := s.Scan(&t.ID, &t.Title, &t.Content, &author, &t.State, &t.Status, &t.CommentCount,
		&t.CreatedAt, &t.ModifiedAt, &t.Version)
	if author.Valid {
		t.AuthorID = uint64(author.Int64)
	}
	t.CreatedAt, t.ModifiedAt = t.CreatedAt.UTC(), t.ModifiedAt.UTC()
	return t, err
}

func nullID(id uint64) any {
	if id == 0 {
		return nil
	}
	return id
}
