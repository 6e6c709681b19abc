package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCacheWithClient(client, DefaultConfig()), mr
}

// backends runs fn against every Cache implementation
func backends(t *testing.T, fn func(t *testing.T, c Cache)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryCache(DefaultConfig()))
	})
	t.Run("redis", func(t *testing.T) {
		c, _ := setupTestRedis(t)
		defer c.Close()
		fn(t, c)
	})
}

func TestCache_SetGetDelete(t *testing.T) {
	backends(t, func(t *testing.T, c Cache) {
		ctx := context.Background()

		_, err := c.Get(ctx, "snapshot:a")
		assert.True(t, IsMiss(err))

		require.NoError(t, c.Set(ctx, "snapshot:a", []byte(`{"metadata":[]}`), 0))
		value, err := c.Get(ctx, "snapshot:a")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"metadata":[]}`), value)

		require.NoError(t, c.Delete(ctx, "snapshot:a"))
		_, err = c.Get(ctx, "snapshot:a")
		assert.True(t, IsMiss(err))
	})
}

func TestCache_Clear(t *testing.T) {
	backends(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
		require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))

		require.NoError(t, c.Clear(ctx))

		for _, key := range []string{"a", "b"} {
			_, err := c.Get(ctx, key)
			assert.True(t, IsMiss(err), key)
		}
	})
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	c := NewMemoryCache(DefaultConfig())
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", []byte("x"), time.Minute))
	require.NoError(t, c.Set(ctx, "default", []byte("y"), 0))
	require.NoError(t, c.Set(ctx, "forever", []byte("z"), -1))

	now = now.Add(2 * time.Minute)
	_, err := c.Get(ctx, "short")
	assert.True(t, IsMiss(err))

	_, err = c.Get(ctx, "default")
	assert.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = c.Get(ctx, "default")
	assert.True(t, IsMiss(err))

	_, err = c.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(DefaultConfig())

	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'X'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'Y'
	again, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestMemoryCache_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewMemoryCache(DefaultConfig())
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), context.Canceled)
}

func TestRedisCache_TTLAndPrefix(t *testing.T) {
	ctx := context.Background()
	c, mr := setupTestRedis(t)

	require.NoError(t, c.Set(ctx, "snap", []byte("v"), 30*time.Second))
	assert.True(t, mr.Exists("redcapp:snap"))
	assert.Equal(t, 30*time.Second, mr.TTL("redcapp:snap"))

	require.NoError(t, c.Set(ctx, "default", []byte("v"), 0))
	assert.Equal(t, 10*time.Minute, mr.TTL("redcapp:default"))

	require.NoError(t, c.Set(ctx, "keep", []byte("v"), -1))
	assert.Equal(t, time.Duration(0), mr.TTL("redcapp:keep"))

	mr.FastForward(time.Minute)
	_, err := c.Get(ctx, "snap")
	assert.True(t, IsMiss(err))

	// keys outside the prefix survive Clear
	require.NoError(t, mr.Set("other:key", "x"))
	require.NoError(t, c.Clear(ctx))
	assert.True(t, mr.Exists("other:key"))
	assert.False(t, mr.Exists("redcapp:default"))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	c, err := New(ctx, DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	c, err = New(ctx, Config{Backend: BackendNone})
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = New(ctx, Config{Backend: "memcached"})
	assert.Error(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := DefaultConfig()
	cfg.Backend = BackendRedis
	cfg.RedisAddr = mr.Addr()
	c, err = New(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, c)
	require.NoError(t, c.Close())

	cfg.RedisAddr = "localhost:99999"
	_, err = New(ctx, cfg)
	assert.Error(t, err)
}

func TestSnapshotKey(t *testing.T) {
	a := SnapshotKey("https://redcap.example.org/api/", "TOKEN1")
	b := SnapshotKey("https://redcap.example.org/api/", "TOKEN2")

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, SnapshotKey("https://redcap.example.org/api/", "TOKEN1"))
	assert.NotContains(t, a, "TOKEN1")
	assert.Len(t, a, len("snapshot:")+16)
}
