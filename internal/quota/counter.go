package quota

import (
	"context"
	"log/slog"
	"time"
	"usagemeter/internal/window"

	"github.com/coder/quartz"
)

// Check outcomes reported to an Observer.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeFailOpen = "fail_open"
)

const (
	defaultKeyPrefix = "usagemeter:quota:"
	defaultTimeout   = 500 * time.Millisecond

	// keyTTL is refreshed on every increment. A request near midnight can
	// stretch a key's life past the day boundary; the day in the key keeps
	// counts from leaking into the next day regardless.
	keyTTL = 24 * time.Hour
)

// Observer receives the outcome of every quota check.
type Observer interface {
	ObserveCheck(ctx context.Context, outcome string)
}

// Counter answers "has this client exceeded its daily limit?".
type Counter struct {
	store    Store
	limit    int
	timeout  time.Duration
	prefix   string
	clock    quartz.Clock
	observer Observer
}

// Option configures a Counter.
type Option func(*Counter)

// WithTimeout bounds every store call (default 500ms).
func WithTimeout(d time.Duration) Option {
	return func(c *Counter) { c.timeout = d }
}

// WithKeyPrefix sets the key prefix (default "usagemeter:quota:").
func WithKeyPrefix(prefix string) Option {
	return func(c *Counter) { c.prefix = prefix }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock quartz.Clock) Option {
	return func(c *Counter) { c.clock = clock }
}

// WithObserver registers an Observer for check outcomes.
func WithObserver(o Observer) Option {
	return func(c *Counter) { c.observer = o }
}

// NewCounter creates a Counter allowing limit events per client per UTC day.
// A nil store selects an in-process MemoryStore.
func NewCounter(store Store, limit int, opts ...Option) *Counter {
	c := &Counter{
		store:   store,
		limit:   limit,
		timeout: defaultTimeout,
		prefix:  defaultKeyPrefix,
		clock:   quartz.NewReal(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryStore(WithMemoryClock(c.clock))
	}
	return c
}

// Limit returns the configured daily limit.
func (c *Counter) Limit() int {
	return c.limit
}

// RetryAfter returns how long until res resets, by the counter's clock,
// rounded up to whole seconds.
func (c *Counter) RetryAfter(res Result) time.Duration {
	d := res.RetryAfter(c.clock.Now())
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	return d
}

// Key builds the store key for a client on a given day.
func Key(prefix, day, clientKey string) string {
	return prefix + day + ":" + clientKey
}

// CheckAndIncrement counts one event for clientKey and returns the verdict.
// Store failures never deny: the result is allowed with full remaining quota
// and Degraded set.
func (c *Counter) CheckAndIncrement(ctx context.Context, clientKey string) Result {
	now := c.clock.Now()
	key := Key(c.prefix, window.Day(now), clientKey)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	count, err := c.store.Increment(ctx, key, keyTTL)
	if err != nil {
		slog.Warn("Quota store unavailable, failing open",
			"client", clientKey,
			"error", err,
		)
		c.observe(ctx, OutcomeFailOpen)
		return c.failOpen(now)
	}

	res := c.verdict(now, count)
	if res.Allowed {
		c.observe(ctx, OutcomeAllowed)
	} else {
		c.observe(ctx, OutcomeDenied)
	}
	return res
}

// Peek returns the verdict the next request would see before it is counted,
// without consuming quota. It returns ErrPeekUnsupported when the store
// cannot read without writing.
func (c *Counter) Peek(ctx context.Context, clientKey string) (Result, error) {
	reader, ok := c.store.(Reader)
	if !ok {
		return Result{}, ErrPeekUnsupported
	}

	now := c.clock.Now()
	key := Key(c.prefix, window.Day(now), clientKey)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	count, err := reader.Get(ctx, key)
	if err != nil {
		slog.Warn("Quota store unavailable for peek, failing open",
			"client", clientKey,
			"error", err,
		)
		return c.failOpen(now), nil
	}

	res := c.verdict(now, count)
	// Nothing was consumed; allowed means one more event fits.
	res.Allowed = count < int64(c.limit)
	return res, nil
}

func (c *Counter) verdict(now time.Time, count int64) Result {
	return Result{
		Allowed:   count <= int64(c.limit),
		Remaining: remaining(c.limit, count),
		Limit:     c.limit,
		Count:     count,
		ResetAt:   window.NextMidnight(now),
	}
}

func (c *Counter) failOpen(now time.Time) Result {
	return Result{
		Allowed:   true,
		Remaining: c.limit,
		Limit:     c.limit,
		ResetAt:   window.NextMidnight(now),
		Degraded:  true,
	}
}

func (c *Counter) observe(ctx context.Context, outcome string) {
	if c.observer != nil {
		c.observer.ObserveCheck(ctx, outcome)
	}
}

func remaining(limit int, count int64) int {
	r := int64(limit) - count
	if r < 0 {
		return 0
	}
	return int(r)
}
