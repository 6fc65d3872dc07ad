package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// EnsureSchema creates the tables the unit backend needs. Safe to run on
// every startup.
func (d *DB) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cadets (
		id          TEXT PRIMARY KEY,
		last_name   TEXT NOT NULL,
		first_name  TEXT NOT NULL,
		rank        TEXT NOT NULL DEFAULT '',
		course      TEXT,
		email       TEXT,
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS staff (
		id          TEXT PRIMARY KEY,
		last_name   TEXT NOT NULL,
		first_name  TEXT NOT NULL,
		rank        TEXT NOT NULL DEFAULT '',
		role        TEXT,
		email       TEXT,
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS training_days (
		id          TEXT PRIMARY KEY,
		date        DATE NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS attendance_records (
		training_day_id TEXT NOT NULL REFERENCES training_days(id) ON DELETE CASCADE,
		person_id       TEXT NOT NULL,
		person_type     TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'unmarked',
		time_in         TEXT,
		time_out        TEXT,
		remarks         TEXT,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (training_day_id, person_id, person_type)
	);

	CREATE TABLE IF NOT EXISTS merit_entries (
		id        TEXT PRIMARY KEY,
		cadet_id  TEXT NOT NULL REFERENCES cadets(id),
		points    INTEGER NOT NULL,
		reason    TEXT NOT NULL,
		issued_by TEXT NOT NULL DEFAULT '',
		issued_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS announcements (
		id         TEXT PRIMARY KEY,
		author_id  TEXT NOT NULL DEFAULT '',
		title      TEXT NOT NULL,
		body       TEXT NOT NULL,
		posted_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS stations (
		station_id    TEXT PRIMARY KEY,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		station_id TEXT NOT NULL REFERENCES stations(station_id),
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_person ON attendance_records(person_id, person_type);
	CREATE INDEX IF NOT EXISTS idx_announcements_posted ON announcements(posted_at);
	`
	_, err := d.Client.ExecContext(ctx, schema)
	return err
}
