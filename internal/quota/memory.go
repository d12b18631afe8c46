package quota

import (
	"context"
	"sync"
	"time"
	"usagemeter/internal/window"

	"github.com/coder/quartz"
)

const defaultMaxEntries = 100000

// entry holds a count and the instant after which it no longer applies.
type entry struct {
	Record
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is an in-process Store. A record whose day is not today, or
// whose expiry has passed, is treated as zero on the next access; there is no
// background sweep. Counts are not shared between processes.
type MemoryStore struct {
	clock      quartz.Clock
	maxEntries int

	mu      sync.Mutex
	entries map[string]*entry
}

var _ Backend = (*MemoryStore)(nil)

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock replaces the wall clock.
func WithMemoryClock(clock quartz.Clock) MemoryOption {
	return func(m *MemoryStore) { m.clock = clock }
}

// WithMaxEntries sets how many keys may accumulate before stale ones are
// pruned during a write. Zero disables pruning.
func WithMaxEntries(n int) MemoryOption {
	return func(m *MemoryStore) { m.maxEntries = n }
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		clock:      quartz.NewReal(),
		maxEntries: defaultMaxEntries,
		entries:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Increment adds one to key. A stale record is reset to zero first.
func (m *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := m.clock.Now()
	today := window.Day(now)

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		if m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
			m.pruneLocked(now, today)
		}
		e = &entry{}
		m.entries[key] = e
	}
	if e.stale(now, today) {
		e.Record = Record{Day: today}
	}

	e.Count++
	e.Day = today
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}

	return e.Count, nil
}

// Get returns the count for key without modifying it.
func (m *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || e.stale(now, window.Day(now)) {
		return 0, nil
	}
	return e.Count, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Name returns "memory".
func (m *MemoryStore) Name() string {
	return "memory"
}

func (e *entry) stale(now time.Time, today string) bool {
	if e.Day != today {
		return true
	}
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// pruneLocked removes stale entries. Callers must hold m.mu.
func (m *MemoryStore) pruneLocked(now time.Time, today string) {
	for key, e := range m.entries {
		if e.stale(now, today) {
			delete(m.entries, key)
		}
	}
}
