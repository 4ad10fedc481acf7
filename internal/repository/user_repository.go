package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/forum-core/internal/model"
)

// UserRepo persists users and their role sets.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, username, email, password_hash, is_banned, last_access_token,
	refresh_token, refresh_token_expiry, created_at, modified_at, version`

// CreateTx inserts u and its roles.  On success u.ID, the timestamps and
// the version are populated.  A taken username or email yields
// ErrDuplicate.
func (r *UserRepo) CreateTx(ctx context.Context, tx *sql.Tx, u *model.User, now time.Time) error {
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, is_banned, last_access_token,
			refresh_token, refresh_token_expiry, created_at, modified_at, version)
		 VALUES (?,?,?,?,?,?,?,?,?,1)`,
		u.Username, u.Email, u.PasswordHash, u.IsBanned, nullString(u.LastAccessToken),
		nullString(u.RefreshToken), nullTime(u.RefreshTokenExpiry), now, now)
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
	u.ID = uint64(id)
	u.CreatedAt, u.ModifiedAt, u.Version = now, now, 1
	return r.replaceRolesTx(ctx, tx, u.ID, u.Roles)
}

// UpdateTx writes every mutable column of u and its role set, guarded by
// u.Version.  A lost race returns ErrConflict; on success u.Version and
// u.ModifiedAt are advanced.
func (r *UserRepo) UpdateTx(ctx context.Context, tx *sql.Tx, u *model.User, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET username=?, email=?, password_hash=?, is_banned=?, last_access_token=?,
			refresh_token=?, refresh_token_expiry=?, modified_at=?, version=version+1
		 WHERE id=? AND version=?`,
		u.Username, u.Email, u.PasswordHash, u.IsBanned, nullString(u.LastAccessToken),
		nullString(u.RefreshToken), nullTime(u.RefreshTokenExpiry), now, u.ID, u.Version)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	if err := checkVersioned(res); err != nil {
		return err
	}
	u.Version++
	u.ModifiedAt = now
	return r.replaceRolesTx(ctx, tx, u.ID, u.Roles)
}

func (r *UserRepo) replaceRolesTx(ctx context.Context, tx *sql.Tx, userID uint64, roles []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id=?", userID); err != nil {
		return fmt.Errorf("clear roles: %w", err)
	}
	for _, role := range roles {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO user_roles (user_id, role) VALUES (?,?)", userID, role); err != nil {
			return fmt.Errorf("insert role %q: %w", role, err)
		}
	}
	return nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.getBy(ctx, r.DB, "id=?", id)
}

// GetByIDTx is GetByID inside an open transaction.
func (r *UserRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.User, error) {
	return r.getBy(ctx, tx, "id=?", id)
}

// GetByUsername fetches a user by login name.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getBy(ctx, r.DB, "username=?", strings.TrimSpace(username))
}

func (r *UserRepo) getBy(ctx context.Context, q Querier, where string, arg any) (*model.User, error) {
	var (
		u       model.User
		access  sql.NullString
		refresh sql.NullString
		expiry  sql.NullTime
	)
	err := q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsBanned, &access,
			&refresh, &expiry, &u.CreatedAt, &u.ModifiedAt, &u.Version)
	if err != nil {
		return nil, noRows(err)
	}
	u.LastAccessToken = access.String
	u.RefreshToken = refresh.String
	if expiry.Valid {
		u.RefreshTokenExpiry = expiry.Time.UTC()
	}
	u.CreatedAt, u.ModifiedAt = u.CreatedAt.UTC(), u.ModifiedAt.UTC()
	if u.Roles, err = r.roles(ctx, q, u.ID); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) roles(ctx context.Context, q Querier, userID uint64) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT role FROM user_roles WHERE user_id=? ORDER BY role", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
