package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	MySQL  = "mysql"
	SQLite = "sqlite"
)

// Options describes how to reach the database.  MySQL is the production
// target; SQLite serves local runs and tests with the same schema.
type Options struct {
	Driver string
	User   string
	Pass   string
	Host   string
	Port   string
	Name   string
	Path   string // sqlite file
}

// Open connects to the configured database, verifies the connection and
// applies the schema.
func Open(ctx context.Context, opt Options) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch opt.Driver {
	case MySQL, "":
		db, err = openMySQL(opt)
	case SQLite:
		db, err = openSQLite(opt)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", opt.Driver)
	}
	if err != nil {
		return nil, err
	}

	// Ping with timeout
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := Migrate(ctx, db, opt.Driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func openMySQL(opt Options) (*sql.DB, error) {
	auth := opt.User
	if opt.Pass != "" {
		auth = fmt.Sprintf("%s:%s", opt.User, opt.Pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, opt.Host, opt.Port, opt.Name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func openSQLite(opt Options) (*sql.DB, error) {
	if opt.Path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", opt.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single writer connection keeps SQLite transactions serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}
