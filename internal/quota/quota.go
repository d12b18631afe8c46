// Package quota enforces a daily per-client event quota. Counts are kept in a
// pluggable Store under keys scoped to the current UTC day, so a new day starts
// from zero without any reset job. Networked stores (Redis, PostgreSQL) share
// counts across replicas; MemoryStore is correct only within one process.
package quota

import (
	"context"
	"errors"
	"time"
)

// ErrPeekUnsupported is returned by Counter.Peek when the configured store
// cannot read a count without incrementing it.
var ErrPeekUnsupported = errors.New("quota: store does not support non-consuming reads")

// Store is an atomic counter with expiry. Implementations must be safe for
// concurrent use.
type Store interface {
	// Increment adds one to key, (re)sets its expiry to ttl and returns the
	// post-increment value.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Reader is implemented by stores that can read a count without changing it.
type Reader interface {
	// Get returns the current value of key, or 0 when the key is absent or expired.
	Get(ctx context.Context, key string) (int64, error)
}

// Backend is a complete counter store as built by NewBackend.
type Backend interface {
	Store
	Reader

	// Ping reports whether the backing service is reachable.
	Ping(ctx context.Context) error

	// Close releases connections held by the store.
	Close() error

	// Name identifies the backend in logs and health output.
	Name() string
}

// Record is the in-process view of one client's count for one day.
type Record struct {
	Count int64
	Day   string
}

// Result is the verdict of a quota check.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	Count     int64
	ResetAt   time.Time // Next UTC midnight

	// Degraded is set when the store failed and the verdict was granted
	// without counting.
	Degraded bool
}

// RetryAfter returns how long a denied client must wait, measured from now.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
