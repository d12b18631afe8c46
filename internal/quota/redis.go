package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis INCR and EXPIRE. The two commands are
// pipelined but not transactional: if EXPIRE is lost the key keeps counting
// and the next increment sets the expiry again.
type RedisStore struct {
	client goredis.Cmdable
	closer func() error
}

var _ Backend = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. The client must be a connected
// *goredis.Client or *goredis.ClusterClient; the caller keeps ownership.
func NewRedisStore(client goredis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromOptions creates a client from opts and owns it; Close
// closes the client.
func NewRedisStoreFromOptions(opts *goredis.Options) *RedisStore {
	client := goredis.NewClient(opts)
	return &RedisStore{
		client: client,
		closer: client.Close,
	}
}

// Increment adds one to key and refreshes its expiry.
func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *goredis.IntCmd
	_, err := s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("quota/redis: increment: %w", err)
	}
	return incr.Val(), nil
}

// Get returns the current count for key, or 0 if it does not exist.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota/redis: get: %w", err)
	}
	return n, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("quota/redis: ping: %w", err)
	}
	return nil
}

// Close closes the client if the store created it.
func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Name returns "redis".
func (s *RedisStore) Name() string {
	return "redis"
}
