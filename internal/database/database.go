// Package database implements the metadata store on SQLite. It holds
// permission grants and share records and provides the atomic counter
// increment the share issuer depends on.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-engine/internal/logging"
	"media-engine/internal/metrics"
)

// Default timeout for metadata store operations.
const defaultTimeout = 5 * time.Second

// Database manages all metadata store operations.
type Database struct {
	db     *sql.DB
	dbPath string
}

// New opens (creating if necessary) the metadata database at dbPath. The
// parent directory must already exist and be writable; use
// startup.LoadConfig() for directory validation before calling this.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Metadata store path: %s", dbPath)

	// WAL mode and busy_timeout keep concurrent readers from tripping over
	// "database is locked" errors.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{db: db, dbPath: dbPath}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Metadata store initialized at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS grants (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_kind   TEXT NOT NULL CHECK (subject_kind IN ('user', 'role')),
		subject_id     TEXT NOT NULL,
		path           TEXT NOT NULL,
		can_read       INTEGER NOT NULL DEFAULT 0,
		can_write      INTEGER NOT NULL DEFAULT 0,
		can_delete     INTEGER NOT NULL DEFAULT 0,
		can_share      INTEGER NOT NULL DEFAULT 0,
		recursive      INTEGER NOT NULL DEFAULT 0,
		expires_at     INTEGER,
		created_at     INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_grants_subject_path
		ON grants (subject_kind, subject_id, path);

	CREATE TABLE IF NOT EXISTS shares (
		key             TEXT PRIMARY KEY,
		path            TEXT NOT NULL,
		expires_at      INTEGER,
		max_accesses    INTEGER NOT NULL DEFAULT 0,
		access_count    INTEGER NOT NULL DEFAULT 0,
		password_hash   TEXT NOT NULL DEFAULT '',
		require_account INTEGER NOT NULL DEFAULT 0,
		created_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_shares_path ON shares (path);
	`

	execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if _, err := d.db.ExecContext(execCtx, schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	return nil
}

// Ping verifies the store connection, for readiness checks.
func (d *Database) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(pingCtx)
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}

// observe records query metrics the way every store method reports them.
func observe(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
