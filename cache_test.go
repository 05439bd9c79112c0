package ugibdd_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bohemiyan/ugibdd"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	mr, client := setupRedis(t)
	store := ugibdd.NewRedisStore(client, "test:", time.Hour)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, ugibdd.MarkerUser)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, ugibdd.MarkerUser, `{"nickname":"petrov"}`))
	require.NoError(t, store.Set(ctx, ugibdd.MarkerLastActivity, "1741942800000"))
	assert.True(t, mr.Exists("test:session:user"))
	assert.Equal(t, time.Hour, mr.TTL("test:session:user"))

	v, ok, err := store.Get(ctx, ugibdd.MarkerUser)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"nickname":"petrov"}`, v)

	require.NoError(t, store.Delete(ctx, ugibdd.MarkerUser, ugibdd.MarkerToken, ugibdd.MarkerLastActivity))
	assert.False(t, mr.Exists("test:session:user"))
	assert.False(t, mr.Exists("test:session:lastActivityTime"))
	require.NoError(t, store.Delete(ctx))
}

func TestRedisStoreMarkersExpire(t *testing.T) {
	mr, client := setupRedis(t)
	store := ugibdd.NewRedisStore(client, "", time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, ugibdd.MarkerToken, "tok"))
	assert.True(t, mr.Exists("ugibdd:session:token"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := store.Get(ctx, ugibdd.MarkerToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreReportsOutage(t *testing.T) {
	mr, client := setupRedis(t)
	store := ugibdd.NewRedisStore(client, "test:", 0)
	mr.Close()

	_, _, err := store.Get(context.Background(), ugibdd.MarkerUser)
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	store := ugibdd.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", "1"))
	v, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, store.Delete(ctx, "a", "missing"))
	_, ok, _ = store.Get(ctx, "a")
	assert.False(t, ok)
}
