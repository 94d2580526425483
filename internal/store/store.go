// Package store persists jobs, raw provider records, resolved profiles,
// generated outputs and PDF deliveries in sqlite.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping reports database liveness for health checks.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

var migrations = []string{
	`CREATE TABLE jobs (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL,
		name          TEXT NOT NULL DEFAULT '',
		company       TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL DEFAULT '',
		industry      TEXT NOT NULL DEFAULT '',
		buying_stage  TEXT NOT NULL DEFAULT '',
		consent       INTEGER NOT NULL DEFAULT 0,
		status        TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMP NOT NULL,
		completed_at  TIMESTAMP
	);
	CREATE INDEX idx_jobs_email ON jobs(email);

	CREATE TABLE raw_records (
		email      TEXT NOT NULL,
		provider   TEXT NOT NULL,
		priority   INTEGER NOT NULL,
		success    INTEGER NOT NULL,
		error      TEXT NOT NULL DEFAULT '',
		payload    TEXT NOT NULL DEFAULT '{}',
		fetched_at TIMESTAMP NOT NULL,
		PRIMARY KEY (email, provider)
	);

	CREATE TABLE profiles (
		email       TEXT PRIMARY KEY,
		fields      TEXT NOT NULL DEFAULT '{}',
		quality     REAL NOT NULL DEFAULT 0,
		sources     TEXT NOT NULL DEFAULT '[]',
		resolved_at TIMESTAMP NOT NULL
	);

	CREATE TABLE outputs (
		job_id            TEXT PRIMARY KEY,
		email             TEXT NOT NULL,
		intro_hook        TEXT NOT NULL,
		cta               TEXT NOT NULL,
		model_used        TEXT NOT NULL DEFAULT '',
		tokens_used       INTEGER NOT NULL DEFAULT 0,
		attempt_count     INTEGER NOT NULL DEFAULT 0,
		compliance_passed INTEGER NOT NULL DEFAULT 0,
		violations        TEXT NOT NULL DEFAULT '[]',
		created_at        TIMESTAMP NOT NULL
	);
	CREATE INDEX idx_outputs_email ON outputs(email);

	CREATE TABLE deliveries (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id        TEXT NOT NULL,
		email         TEXT NOT NULL,
		storage_path  TEXT NOT NULL DEFAULT '',
		signed_url    TEXT NOT NULL DEFAULT '',
		expires_at    TIMESTAMP,
		size_bytes    INTEGER NOT NULL DEFAULT 0,
		status        TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMP NOT NULL
	);
	CREATE INDEX idx_deliveries_email ON deliveries(email);`,
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("bump user_version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
