package quota

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coder/quartz"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS quota_counters (
	key        TEXT PRIMARY KEY,
	count      INTEGER NOT NULL,
	expires_at INTEGER
)`

// Expiry is stored as Unix nanoseconds; NULL means no expiry.
const sqliteIncrement = `INSERT INTO quota_counters (key, count, expires_at)
VALUES (?1, 1, ?2)
ON CONFLICT (key) DO UPDATE SET
	count = CASE
		WHEN quota_counters.expires_at IS NOT NULL AND quota_counters.expires_at <= ?3 THEN 1
		ELSE quota_counters.count + 1
	END,
	expires_at = excluded.expires_at
RETURNING count`

const sqliteGet = `SELECT count FROM quota_counters
WHERE key = ?1 AND (expires_at IS NULL OR expires_at > ?2)`

const sqliteSweep = `DELETE FROM quota_counters WHERE expires_at IS NOT NULL AND expires_at <= ?1`

// SQLiteStore is a Store backed by a SQLite file. It shares counts between
// processes on the same host, not between hosts.
type SQLiteStore struct {
	db    *sql.DB
	clock quartz.Clock
}

var _ Backend = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at dsn and creates the counter table.
func NewSQLiteStore(dsn string, clock quartz.Clock) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for SQLite quota store")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY inside
	// this process.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create quota table: %w", err)
	}

	if clock == nil {
		clock = quartz.NewReal()
	}
	return &SQLiteStore{db: db, clock: clock}, nil
}

// Increment adds one to key and refreshes its expiry.
func (s *SQLiteStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.clock.Now()

	var expiresAt any
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixNano()
	}

	var count int64
	err := s.db.QueryRowContext(ctx, sqliteIncrement, key, expiresAt, now.UnixNano()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("quota/sqlite: increment: %w", err)
	}
	return count, nil
}

// Get returns the live count for key, or 0.
func (s *SQLiteStore) Get(ctx context.Context, key string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, sqliteGet, key, s.clock.Now().UnixNano()).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota/sqlite: get: %w", err)
	}
	return count, nil
}

// Sweep deletes expired rows and returns how many were removed.
func (s *SQLiteStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqliteSweep, s.clock.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("quota/sqlite: sweep: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("quota/sqlite: ping: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Name returns "sqlite".
func (s *SQLiteStore) Name() string {
	return "sqlite"
}
