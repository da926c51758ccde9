package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskbot/internal/analysis"
	"github.com/fyrsmithlabs/taskbot/internal/cache"
)

var (
	_ analysis.Cache = (*cache.Memory)(nil)
	_ analysis.Cache = (*cache.Redis)(nil)
)

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory(8, time.Hour)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	payload := []byte(`{"tasks":[]}`)
	require.NoError(t, c.Set(ctx, "k", payload, time.Minute))
	payload[0] = 'x'

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"tasks":[]}`, string(got), "stored value must not alias the caller's slice")

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestMemory_EntryTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	c := cache.NewMemory(8, time.Hour, cache.WithClock(func() time.Time { return now }))

	require.NoError(t, c.Set(ctx, "short", []byte("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "forever", []byte("b"), 0))

	now = now.Add(59 * time.Second)
	_, ok, _ := c.Get(ctx, "short")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = c.Get(ctx, "short")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "forever")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestMemory_Bounded(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory(2, time.Hour)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))
	_, _, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Hour))

	_, ok, _ := c.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())

	require.NoError(t, c.Delete(ctx, "a"))
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := cache.NewMemory(0, time.Hour)

	assert.ErrorIs(t, c.Set(ctx, "k", []byte("v"), time.Minute), context.Canceled)
	_, _, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func newRedis(t *testing.T) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	r, err := cache.NewRedis(cache.RedisConfig{Addr: srv.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, srv
}

func TestRedis_GetSet(t *testing.T) {
	ctx := context.Background()
	r, srv := newRedis(t)

	require.NoError(t, r.Ping(ctx))

	_, ok, err := r.Get(ctx, "analysis:1:abc")
	require.NoError(t, err, "redis.Nil is a miss")
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "analysis:1:abc", []byte(`{"id":"x"}`), time.Hour))
	got, ok, err := r.Get(ctx, "analysis:1:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"id":"x"}`, string(got))
	assert.Equal(t, time.Hour, srv.TTL("analysis:1:abc"))

	srv.FastForward(time.Hour)
	_, ok, err = r.Get(ctx, "analysis:1:abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_Delete(t *testing.T) {
	ctx := context.Background()
	r, _ := newRedis(t)

	require.NoError(t, r.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, r.Delete(ctx, "k"))
	_, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_ServerError(t *testing.T) {
	ctx := context.Background()
	r, srv := newRedis(t)
	srv.SetError("ERR injected failure")

	_, ok, err := r.Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, r.Set(ctx, "k", []byte("v"), time.Minute))
}

func TestNewRedis_RequiresAddr(t *testing.T) {
	_, err := cache.NewRedis(cache.RedisConfig{})
	assert.Error(t, err)
}
