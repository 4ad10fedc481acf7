package database

import (
	"context"
	"database/sql"
	"fmt"
)

// The two dialects share table and column names so that the repository
// layer can issue the same statements against either.  Timestamps are
// always written by the application in UTC.

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(64) NOT NULL UNIQUE,
		email VARCHAR(80) NOT NULL UNIQUE,
		password_hash VARCHAR(100) NOT NULL,
		is_banned TINYINT(1) NOT NULL DEFAULT 0,
		last_access_token TEXT NULL,
		refresh_token VARCHAR(64) NULL,
		refresh_token_expiry DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL,
		modified_at DATETIME(6) NOT NULL,
		version BIGINT UNSIGNED NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id BIGINT UNSIGNED NOT NULL,
		role VARCHAR(32) NOT NULL,
		PRIMARY KEY (user_id, role),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS bans (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL UNIQUE,
		reason VARCHAR(100) NOT NULL DEFAULT '',
		ban_end_date DATETIME(6) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		modified_at DATETIME(6) NOT NULL,
		version BIGINT UNSIGNED NOT NULL DEFAULT 1,
		INDEX idx_bans_end_date (ban_end_date),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS topics (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(80) NOT NULL,
		content TEXT NOT NULL,
		author_id BIGINT UNSIGNED NULL,
		state VARCHAR(16) NOT NULL DEFAULT 'Pending',
		status VARCHAR(16) NOT NULL DEFAULT 'Active',
		comment_count INT UNSIGNED NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		modified_at DATETIME(6) NOT NULL,
		version BIGINT UNSIGNED NOT NULL DEFAULT 1,
		INDEX idx_topics_status (status),
		FOREIGN KEY (author_id) REFERENCES users(id) ON DELETE SET NULL
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		topic_id BIGINT UNSIGNED NOT NULL,
		author_id BIGINT UNSIGNED NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		modified_at DATETIME(6) NOT NULL,
		version BIGINT UNSIGNED NOT NULL DEFAULT 1,
		INDEX idx_comments_topic_created (topic_id, created_at),
		FOREIGN KEY (topic_id) REFERENCES topics(id) ON DELETE CASCADE,
		FOREIGN KEY (author_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		logged_at DATETIME(6) NOT NULL,
		entity_type VARCHAR(32) NOT NULL,
		entity_id VARCHAR(32) NOT NULL,
		operation VARCHAR(16) NOT NULL,
		field_name VARCHAR(64) NOT NULL,
		old_value TEXT NOT NULL,
		new_value TEXT NOT NULL,
		INDEX idx_audit_entity (entity_type, entity_id)
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_banned BOOLEAN NOT NULL DEFAULT 0,
		last_access_token TEXT NULL,
		refresh_token TEXT NULL,
		refresh_token_expiry DATETIME NULL,
		created_at DATETIME NOT NULL,
		modified_at DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		PRIMARY KEY (user_id, role)
	)`,
	`CREATE TABLE IF NOT EXISTS bans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		reason TEXT NOT NULL DEFAULT '',
		ban_end_date DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		modified_at DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bans_end_date ON bans(ban_end_date)`,
	`CREATE TABLE IF NOT EXISTS topics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		author_id INTEGER NULL REFERENCES users(id) ON DELETE SET NULL,
		state TEXT NOT NULL DEFAULT 'Pending',
		status TEXT NOT NULL DEFAULT 'Active',
		comment_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		modified_at DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_topics_status ON topics(status)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic_id INTEGER NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
		author_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		modified_at DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_topic_created ON comments(topic_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		logged_at DATETIME NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		field_name TEXT NOT NULL,
		old_value TEXT NOT NULL,
		new_value TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_logs(entity_type, entity_id)`,
}

// Migrate creates any missing tables.  It is idempotent and runs on every
// start.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	stmts := mysqlSchema
	if driver == SQLite {
		stmts = sqliteSchema
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
