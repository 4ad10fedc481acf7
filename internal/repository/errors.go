// Package repository holds the SQL data access layer and the sentinel
// errors it reports.  Higher layers such as services and handlers use the
// sentinels to tell failure scenarios apart: ErrNotFound becomes HTTP 404,
// ErrConflict becomes HTTP 409 and ErrDuplicate is mapped by the caller to
// whatever domain conflict it represents.
package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the target row no longer exists.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an update lost an optimistic concurrency
// race (the row's version moved on) or when the write would violate a
// domain rule such as banning an already banned user.  It is retryable
// from the caller's perspective.
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when an insert hits a unique index.
var ErrDuplicate = errors.New("duplicate")

// isDuplicate reports whether err is a unique-key violation on either
// supported driver.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	// modernc/sqlite surfaces constraint failures as plain messages.
	return strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT FAILED")
}

// noRows maps sql.ErrNoRows to ErrNotFound and leaves other errors alone.
func noRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
