package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/forum-core/internal/audit"
)

// Querier is the subset of *sql.DB and *sql.Tx the repositories use for
// reads, so the same query can run inside or outside a unit of work.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store runs units of work.  Every Save is one transaction; the audit
// recorder is invoked just before commit so the mutation and its audit
// rows land together or not at all.
type Store struct {
	DB       *sql.DB
	Recorder *audit.Recorder
	now      func() time.Time
}

// NewStore returns a Store on db.  recorder may be nil, in which case no
// audit rows are written.
func NewStore(db *sql.DB, recorder *audit.Recorder) *Store {
	return &Store{DB: db, Recorder: recorder, now: Now}
}

// Now is the clock used for persisted timestamps: UTC, microsecond
// precision to match DATETIME(6).
func Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// UnitOfWork is handed to the Save callback.  It exposes the open
// transaction and collects the entity changes to audit.
type UnitOfWork struct {
	tx      *sql.Tx
	now     time.Time
	changes []audit.Change
}

// Tx returns the transaction the callback must use for every statement.
func (u *UnitOfWork) Tx() *sql.Tx { return u.tx }

// Now returns the timestamp shared by every write of this unit of work.
func (u *UnitOfWork) Now() time.Time { return u.now }

// Created tracks a newly inserted entity.
func (u *UnitOfWork) Created(after audit.Snapshot) {
	u.changes = append(u.changes, audit.Change{Op: audit.Created, After: after})
}

// Updated tracks a modified entity.
func (u *UnitOfWork) Updated(before, after audit.Snapshot) {
	u.changes = append(u.changes, audit.Change{Op: audit.Updated, Before: before, After: after})
}

// Save runs fn inside a transaction.  When fn returns nil the tracked
// changes are audited and the transaction commits; otherwise it rolls back
// and fn's error is returned unchanged.
func (s *Store) Save(ctx context.Context, fn func(*UnitOfWork) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	uow := &UnitOfWork{tx: tx, now: s.now()}
	if err = fn(uow); err != nil {
		return err
	}
	if s.Recorder != nil {
		if _, err = s.Recorder.Record(ctx, tx, uow.changes); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// checkVersioned converts the result of a version-checked UPDATE into
// ErrConflict when no row matched.
func checkVersioned(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
