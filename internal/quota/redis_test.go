package quota

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStoreFromOptions(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore_Increment(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := store.Increment(ctx, "usagemeter:quota:2026-06-01:10.0.0.1", 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	assert.Equal(t, 24*time.Hour, mr.TTL("usagemeter:quota:2026-06-01:10.0.0.1"))

	n, err := store.Get(ctx, "usagemeter:quota:2026-06-01:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRedisStore_GetMissing(t *testing.T) {
	store, _ := newTestRedisStore(t)

	n, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	_, err = store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	assert.False(t, mr.Exists("k"))

	n, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisStore_NoTTL(t *testing.T) {
	store, mr := newTestRedisStore(t)

	_, err := store.Increment(context.Background(), "k", 0)
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), mr.TTL("k"))
}

func TestRedisStore_ServerError(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	mr.SetError("LOADING dataset in memory")

	_, err := store.Increment(ctx, "k", time.Minute)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "quota/redis: increment")

	_, err = store.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, store.Ping(ctx))
}

func TestRedisStore_CounterFailsOpenWhenDown(t *testing.T) {
	store, mr := newTestRedisStore(t)
	counter := NewCounter(store, 1, WithTimeout(200*time.Millisecond))
	ctx := context.Background()

	assert.True(t, counter.CheckAndIncrement(ctx, "client").Allowed)
	assert.False(t, counter.CheckAndIncrement(ctx, "client").Allowed)

	mr.Close()

	res := counter.CheckAndIncrement(ctx, "client")
	assert.True(t, res.Allowed)
	assert.True(t, res.Degraded)
}

func TestRedisStore_SharedAcrossCounters(t *testing.T) {
	mr := miniredis.RunT(t)
	a := NewRedisStoreFromOptions(&goredis.Options{Addr: mr.Addr()})
	b := NewRedisStoreFromOptions(&goredis.Options{Addr: mr.Addr()})
	defer a.Close()
	defer b.Close()

	replicaA := NewCounter(a, 2)
	replicaB := NewCounter(b, 2)
	ctx := context.Background()

	assert.True(t, replicaA.CheckAndIncrement(ctx, "client").Allowed)
	assert.True(t, replicaB.CheckAndIncrement(ctx, "client").Allowed)
	assert.False(t, replicaA.CheckAndIncrement(ctx, "client").Allowed)
}

func TestRedisStore_WrapsExistingClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)
	require.NoError(t, store.Close())

	// Close must not close a client the store does not own.
	assert.NoError(t, client.Ping(context.Background()).Err())
	assert.Equal(t, "redis", store.Name())
}
