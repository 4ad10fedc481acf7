package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/forum-core/internal/audit"
)

// AuditRepo is the append-only store of audit rows.  It offers inserts
// and reads only; rows are never updated or deleted.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

var _ audit.EntryWriter = (*AuditRepo)(nil)

// InsertEntriesTx appends entries within tx, in order.
func (r *AuditRepo) InsertEntriesTx(ctx context.Context, tx *sql.Tx, entries []audit.Entry) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO audit_logs (logged_at, entity_type, entity_id, operation, field_name, old_value, new_value)
		 VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Timestamp.UTC(), e.EntityType, e.EntityID,
			string(e.Operation), e.FieldName, e.OldValue, e.NewValue); err != nil {
			return err
		}
	}
	return nil
}

// ListByEntity returns the rows of one entity in insertion order.
func (r *AuditRepo) ListByEntity(ctx context.Context, entityType, entityID string) ([]audit.Entry, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, logged_at, entity_type, entity_id, operation, field_name, old_value, new_value
		 FROM audit_logs WHERE entity_type=? AND entity_id=? ORDER BY id`,
		entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []audit.Entry{}
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EntityType, &e.EntityID, &e.Operation,
			&e.FieldName, &e.OldValue, &e.NewValue); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the total number of audit rows.
func (r *AuditRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs").Scan(&n)
	return n, err
}
