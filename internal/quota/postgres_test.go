package quota

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set, skipping PostgreSQL quota tests")
	}

	store, err := NewPostgresStore(context.Background(), PostgresConfig{
		DSN:      dsn,
		MaxConns: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgresStore_RequiresDSN(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), PostgresConfig{})
	assert.Error(t, err)
}

func TestPostgresStore_Increment(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	key := fmt.Sprintf("test:%d", time.Now().UnixNano())

	for i := int64(1); i <= 3; i++ {
		n, err := store.Increment(ctx, key, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = store.Get(ctx, key+":missing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPostgresStore_Expiry(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	key := fmt.Sprintf("test:%d", time.Now().UnixNano())

	_, err := store.Increment(ctx, key, time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	n, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = store.Increment(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.Sweep(ctx)
	require.NoError(t, err)
	assert.NoError(t, store.Ping(ctx))
}
