package sqlite

import (
	"context"
	"strings"

	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/alcaldia-digital/memoria/internal/profile"
	"github.com/alcaldia-digital/memoria/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database named by the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	// Ensure a DSN is set before attempting to open the database.
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect with some sane settings:
	// - No foreign key constraints: disabled by default anyway, but be
	//   explicit to prevent surprises on SQLite upgrades.
	// - busy_timeout bounds lock waits so calls fail instead of hanging.
	// - Journal mode set to WAL: the recommended mode for most
	//   applications, prevents locking issues.
	//
	// With the `modernc.org/sqlite` driver each pragma must be prefixed
	// with `_pragma=`, see https://pkg.go.dev/modernc.org/sqlite#Driver.Open.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// A single connection is optimal for SQLite with WAL; it also makes
	// the ON CONFLICT upsert path trivially serialized.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type='table' AND name='memory')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}

const latestSchema = `
CREATE TABLE IF NOT EXISTS memory (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	importance INTEGER NOT NULL DEFAULT 3,
	confidence REAL NOT NULL DEFAULT 0.6,
	expires_ts BIGINT,
	last_reinforced_ts BIGINT NOT NULL,
	created_ts BIGINT NOT NULL,
	UNIQUE (user_id, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_memory_user_id ON memory (user_id);

CREATE TABLE IF NOT EXISTS conversation_summary (
	user_id TEXT PRIMARY KEY,
	summary_text TEXT NOT NULL,
	updated_ts BIGINT NOT NULL
);
`

// Migrate creates the schema if it does not exist yet. Statements are
// idempotent; running Migrate on an initialized database is a no-op.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(latestSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to apply schema statement")
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// modernc.org/sqlite does not export a stable typed error for this, so the
// message is matched; it has been stable across driver versions.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
