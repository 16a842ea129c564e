// Package storage is the local SQLite store of projects imported from the
// portal, their audit trail and the users' encrypted portal credentials.
package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrProjectNotFound   = errors.New("project not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrMissingPermitCode = errors.New("missing permit code")
)

type DB struct {
	sql *sql.DB
	now func() time.Time
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS users (
  id                INTEGER PRIMARY KEY,
  username          TEXT NOT NULL UNIQUE,
  tee_username      TEXT,
  tee_password_enc  TEXT,
  created_at        TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS projects (
  id                  INTEGER PRIMARY KEY,
  code                TEXT NOT NULL UNIQUE,
  title               TEXT NOT NULL,
  type                TEXT NOT NULL,
  is_continuation     INTEGER NOT NULL DEFAULT 0 CHECK (is_continuation IN (0,1)),
  stage               TEXT NOT NULL,
  tee_permit_code     TEXT UNIQUE,
  aitisi_type_code    INTEGER,
  yd_id               INTEGER,
  dimos_aa            INTEGER,
  tee_submission_date TEXT,
  tee_sync_at         TEXT,
  tee_raw             TEXT,
  notes               TEXT,
  created_by          INTEGER,
  created_at          TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at          TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS properties (
  id          INTEGER PRIMARY KEY,
  project_id  INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  addr        TEXT,
  city        TEXT,
  kaek        TEXT
);
CREATE INDEX IF NOT EXISTS idx_properties_project ON properties(project_id);
CREATE TABLE IF NOT EXISTS workflow_logs (
  id          INTEGER PRIMARY KEY,
  project_id  INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  action      TEXT NOT NULL,
  from_stage  TEXT,
  to_stage    TEXT,
  user_id     INTEGER,
  metadata    TEXT,
  created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_project ON workflow_logs(project_id, created_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db, now: time.Now}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

func (d *DB) timestamp() string {
	return d.now().UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) time.Time {
	// Parse SQLite CURRENT_TIMESTAMP format
	// Try "2006-01-02 15:04:05" then RFC3339
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfNil(n *int) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
