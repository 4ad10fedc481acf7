// Package audit turns committed entity mutations into append-only, field-level
// log rows.
//
// Which fields are audited is an explicit contract: every auditable entity
// hands over a Snapshot listing its audited fields, and Diff compares two
// snapshots of the same kind.  Nothing is discovered by reflection.
package audit

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Operation is the kind of mutation a row describes.
type Operation string

const (
	Created Operation = "Created"
	Updated Operation = "Updated"
)

// UnassignedID is written as entity id when a created entity has no
// database id yet.
const UnassignedID = "-1"

// Field is one audited scalar, already rendered as a string.
type Field struct {
	Name  string
	Value string
}

// Snapshot is the audited state of one entity at one point in time.
type Snapshot struct {
	Type   string
	ID     string
	Fields []Field
}

// Entry is one immutable audit row.
type Entry struct {
	ID         uint64    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Operation  Operation `json:"operation"`
	FieldName  string    `json:"field_name"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
}

// Change is a pending mutation collected by a unit of work.  Before is the
// zero Snapshot for creations.
type Change struct {
	Op     Operation
	Before Snapshot
	After  Snapshot
}

// Diff returns one entry per changed field.  For Created every field of
// after counts as changed.  For Updated the snapshots are matched by field
// name; a field missing from before is treated as changed.
func Diff(c Change, at time.Time) []Entry {
	id := c.After.ID
	if id == "" || id == "0" {
		id = UnassignedID
	}

	old := make(map[string]string, len(c.Before.Fields))
	for _, f := range c.Before.Fields {
		old[f.Name] = f.Value
	}

	var out []Entry
	for _, f := range c.After.Fields {
		prev, seen := old[f.Name]
		if c.Op == Updated && seen && prev == f.Value {
			continue
		}
		if c.Op == Created {
			prev = ""
		}
		out = append(out, Entry{
			Timestamp:  at,
			EntityType: c.After.Type,
			EntityID:   id,
			Operation:  c.Op,
			FieldName:  f.Name,
			OldValue:   prev,
			NewValue:   f.Value,
		})
	}
	return out
}

// EntryWriter appends rows inside an open transaction.
type EntryWriter interface {
	InsertEntriesTx(ctx context.Context, tx *sql.Tx, entries []Entry) error
}

// Recorder is invoked at the commit boundary of every unit of work.
type Recorder struct {
	w      EntryWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder returns a Recorder writing through w.
func NewRecorder(w EntryWriter, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{w: w, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Record diffs changes and appends the resulting rows through tx.  It
// returns the number of rows written.  The caller commits or rolls back tx;
// on rollback none of the rows survive.
func (r *Recorder) Record(ctx context.Context, tx *sql.Tx, changes []Change) (int, error) {
	if len(changes) == 0 {
		return 0, nil
	}
	at := r.now()
	var entries []Entry
	for _, c := range changes {
		entries = append(entries, Diff(c, at)...)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := r.w.InsertEntriesTx(ctx, tx, entries); err != nil {
		return 0, err
	}
	r.logger.Debug("audit rows staged", "count", len(entries))
	return len(entries), nil
}
