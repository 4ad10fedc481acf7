package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/forum-core/internal/model"
)

// BanRepo persists bans.  The unique index on bans.user_id guarantees a
// user has at most one ban row.
type BanRepo struct{ DB *sql.DB }

func NewBanRepo(db *sql.DB) *BanRepo { return &BanRepo{DB: db} }

const banColumns = "id, user_id, reason, ban_end_date, created_at, modified_at, version"

// CreateTx inserts b.  A second ban for the same user yields ErrDuplicate.
func (r *BanRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Ban, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bans (user_id, reason, ban_end_date, created_at, modified_at, version)
		 VALUES (?,?,?,?,?,1)`,
		b.UserID, b.Reason, b.BanEndDate.UTC(), now, now)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.CreatedAt, b.ModifiedAt, b.Version = now, now, 1
	return nil
}

// UpdateTx rewrites reason and end date, guarded by b.Version.
func (r *BanRepo) UpdateTx(ctx context.Context, tx *sql.Tx, b *model.Ban, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE bans SET reason=?, ban_end_date=?, modified_at=?, version=version+1
		 WHERE id=? AND version=?`,
		b.Reason, b.BanEndDate.UTC(), now, b.ID, b.Version)
	if err != nil {
		return err
	}
	if err := checkVersioned(res); err != nil {
		return err
	}
	b.Version++
	b.ModifiedAt = now
	return nil
}

// DeleteTx removes the ban with the given id.  ErrNotFound when it is
// already gone.
func (r *BanRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM bans WHERE id=?", id)
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

// GetByID fetches a ban by id.
func (r *BanRepo) GetByID(ctx context.Context, id uint64) (*model.Ban, error) {
	return r.getBy(ctx, r.DB, "id=?", id)
}

// GetByIDTx is GetByID inside an open transaction.
func (r *BanRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Ban, error) {
	return r.getBy(ctx, tx, "id=?", id)
}

// GetByUserID fetches the ban of a user.
func (r *BanRepo) GetByUserID(ctx context.Context, userID uint64) (*model.Ban, error) {
	return r.getBy(ctx, r.DB, "user_id=?", userID)
}

// GetByUserIDTx is GetByUserID inside an open transaction.
func (r *BanRepo) GetByUserIDTx(ctx context.Context, tx *sql.Tx, userID uint64) (*model.Ban, error) {
	return r.getBy(ctx, tx, "user_id=?", userID)
}

// List returns every ban ordered by id.
func (r *BanRepo) List(ctx context.Context) ([]model.Ban, error) {
	return r.list(ctx, "SELECT "+banColumns+" FROM bans ORDER BY id")
}

// ExpiredBefore returns the bans whose end date lies before now.
func (r *BanRepo) ExpiredBefore(ctx context.Context, now time.Time) ([]model.Ban, error) {
	return r.list(ctx, "SELECT "+banColumns+" FROM bans WHERE ban_end_date < ? ORDER BY id", now.UTC())
}

func (r *BanRepo) getBy(ctx context.Context, q Querier, where string, arg any) (*model.Ban, error) {
	row := q.QueryRowContext(ctx, "SELECT "+banColumns+" FROM bans WHERE "+where+" LIMIT 1", arg)
	b, err := scanBan(row)
	if err != nil {
		return nil, noRows(err)
	}
	return &b, nil
}

func (r *BanRepo) list(ctx context.Context, query string, args ...any) ([]model.Ban, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ban
	for rows.Next() {
		b, err := scanBan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanBan(s scanner) (model.Ban, error) {
	var b model.Ban
	err := s.Scan(&b.ID, &b.UserID, &b.Reason, &b.BanEndDate, &b.CreatedAt, &b.ModifiedAt, &b.Version)
	b.BanEndDate, b.CreatedAt, b.ModifiedAt = b.BanEndDate.UTC(), b.CreatedAt.UTC(), b.ModifiedAt.UTC()
	return b, err
}
