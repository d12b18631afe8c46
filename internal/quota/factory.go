package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"usagemeter/internal/models"

	"github.com/coder/quartz"
	goredis "github.com/redis/go-redis/v9"
)

// Sweeper is implemented by stores that keep expired keys until told to
// remove them.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// NewBackend instantiates the counter store selected by cfg.Backend.
// Supported backends:
//   - memory: in-process map (single replica only)
//   - redis: shared INCR/EXPIRE counters
//   - postgres: shared upsert counters
//   - sqlite: file-backed counters shared by processes on one host
//
// An unreachable Redis is not an error here: the counter fails open until it
// comes back.
func NewBackend(ctx context.Context, cfg models.QuotaConfig, clock quartz.Clock) (Backend, error) {
	if clock == nil {
		clock = quartz.NewReal()
	}

	switch cfg.Backend {
	case models.QuotaBackendMemory:
		return NewMemoryStore(
			WithMemoryClock(clock),
			WithMaxEntries(cfg.Memory.MaxEntries),
		), nil
	case models.QuotaBackendRedis:
		store := NewRedisStoreFromOptions(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			slog.Warn("Redis quota store not reachable at startup", "addr", cfg.Redis.Addr, "error", err)
		}
		return store, nil
	case models.QuotaBackendPostgres:
		return NewPostgresStore(ctx, PostgresConfig{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxOpenConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			Clock:           clock,
		})
	case models.QuotaBackendSQLite:
		return NewSQLiteStore(cfg.Database.DSN, clock)
	default:
		return nil, fmt.Errorf("unsupported quota backend: %s", cfg.Backend)
	}
}

// SupportedBackends lists every backend NewBackend accepts.
func SupportedBackends() []string {
	return []string{
		models.QuotaBackendMemory,
		models.QuotaBackendRedis,
		models.QuotaBackendPostgres,
		models.QuotaBackendSQLite,
	}
}
