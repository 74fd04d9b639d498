// Package sqlite implements the course store driver on SQLite. A single
// WAL-mode connection serves the whole process; course volume per family
// is small and writes are serialized by the webhook anyway.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/coursesense/store"
)

type DB struct {
	db *sql.DB
}

// NewDB opens the database at the DSN.
//
// Notes:
// - When using the `modernc.org/sqlite` driver, each pragma must be
//   prefixed with `_pragma=`.
// - WAL journal mode prevents locking issues; shared cache is obsolete.
func NewDB(dsn string) (store.Driver, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	sqliteDB, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}

	// Single connection is optimal for SQLite with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	return &DB{db: sqliteDB}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS parent (
	id TEXT PRIMARY KEY,
	created_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS course (
	id TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL,
	student_name TEXT NOT NULL,
	course_name TEXT NOT NULL,
	course_date TEXT NOT NULL DEFAULT '',
	schedule_time TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	teacher TEXT NOT NULL DEFAULT '',
	recurring INTEGER NOT NULL DEFAULT 0,
	recurrence_type TEXT NOT NULL DEFAULT '',
	days_of_week TEXT NOT NULL DEFAULT '',
	start_date TEXT NOT NULL DEFAULT '',
	end_date TEXT NOT NULL DEFAULT '',
	skipped_dates TEXT NOT NULL DEFAULT '',
	reminder_minutes INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	calendar_event_id TEXT NOT NULL DEFAULT '',
	created_ts INTEGER NOT NULL,
	updated_ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_course_parent_status ON course (parent_id, status);

CREATE TABLE IF NOT EXISTS course_content (
	id TEXT PRIMARY KEY,
	course_id TEXT NOT NULL,
	content_date TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	image_ref TEXT NOT NULL DEFAULT '',
	created_ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_course_content_course ON course_content (course_id);
`

// Migrate creates the schema when missing. Statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to migrate schema")
	}
	return nil
}

func (d *DB) UpsertParent(ctx context.Context, parent *store.Parent) (*store.Parent, error) {
	stmt := `
		INSERT INTO parent (id, created_ts)
		VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := d.db.ExecContext(ctx, stmt, parent.ID, parent.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert parent")
	}
	return d.GetParent(ctx, parent.ID)
}

func (d *DB) GetParent(ctx context.Context, id string) (*store.Parent, error) {
	parent := &store.Parent{}
	err := d.db.QueryRowContext(ctx,
		"SELECT id, created_ts FROM parent WHERE id = ?", id,
	).Scan(&parent.ID, &parent.CreatedTs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get parent")
	}
	return parent, nil
}
