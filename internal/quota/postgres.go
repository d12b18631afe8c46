package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `CREATE TABLE IF NOT EXISTS quota_counters (
	key        TEXT PRIMARY KEY,
	count      BIGINT NOT NULL,
	expires_at TIMESTAMPTZ
)`

// pgIncrement upserts the counter in one statement. An expired row restarts
// at 1; every increment refreshes the expiry.
const pgIncrement = `INSERT INTO quota_counters (key, count, expires_at)
VALUES ($1, 1, $2)
ON CONFLICT (key) DO UPDATE SET
	count = CASE
		WHEN quota_counters.expires_at IS NOT NULL AND quota_counters.expires_at <= $3 THEN 1
		ELSE quota_counters.count + 1
	END,
	expires_at = EXCLUDED.expires_at
RETURNING count`

const pgGet = `SELECT count FROM quota_counters
WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`

const pgSweep = `DELETE FROM quota_counters WHERE expires_at IS NOT NULL AND expires_at <= $1`

// PostgresStore is a Store backed by a PostgreSQL table. Expired rows are
// ignored on read and restarted on write; Sweep removes them physically.
type PostgresStore struct {
	pool  *pgxpool.Pool
	clock quartz.Clock
}

var _ Backend = (*PostgresStore)(nil)

// NewPostgresStore connects to the database and creates the counter table
// if it does not exist.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL quota store")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create quota table: %w", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}

	return &PostgresStore{pool: pool, clock: clock}, nil
}

// PostgresConfig holds connection settings for PostgresStore.
type PostgresConfig struct {
	DSN             string
	MaxConns        int
	ConnMaxLifetime time.Duration
	Clock           quartz.Clock
}

// Increment adds one to key and refreshes its expiry.
func (s *PostgresStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.clock.Now().UTC()

	var count int64
	err := s.pool.QueryRow(ctx, pgIncrement, key, expiry(now, ttl), now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("quota/postgres: increment: %w", err)
	}
	return count, nil
}

// Get returns the live count for key, or 0.
func (s *PostgresStore) Get(ctx context.Context, key string) (int64, error) {
	rows, err := s.pool.Query(ctx, pgGet, key, s.clock.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("quota/postgres: get: %w", err)
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("quota/postgres: get: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("quota/postgres: get: %w", err)
	}
	return count, nil
}

// Sweep deletes expired rows and returns how many were removed.
func (s *PostgresStore) Sweep(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, pgSweep, s.clock.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("quota/postgres: sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("quota/postgres: ping: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Name returns "postgres".
func (s *PostgresStore) Name() string {
	return "postgres"
}

// expiry returns the absolute expiry for ttl, or nil for no expiry.
func expiry(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := now.Add(ttl)
	return &t
}
