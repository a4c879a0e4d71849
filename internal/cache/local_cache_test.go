package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailinchat/backend/internal/storage"
)

func newTestCache(maxSize int) (*LocalCache, *time.Time) {
	c := NewLocalCache(maxSize, time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLocalCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(0)
	defer c.Close()

	_, err := c.Get(ctx, "attachment:missing")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "attachment:a1", []byte(`{"base64":"AAAA"}`), time.Minute))

	value, err := c.Get(ctx, "attachment:a1")
	require.NoError(t, err)
	assert.Equal(t, `{"base64":"AAAA"}`, string(value))

	// 返回值是副本
	value[0] = 'X'
	again, err := c.Get(ctx, "attachment:a1")
	require.NoError(t, err)
	assert.Equal(t, byte('{'), again[0])
}

func TestLocalCache_Expiration(t *testing.T) {
	ctx := context.Background()
	c, now := newTestCache(0)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	*now = now.Add(59 * time.Second)
	_, err := c.Get(ctx, "k")
	assert.NoError(t, err)

	*now = now.Add(time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)
	assert.Equal(t, 0, c.Len())

	t.Run("未指定过期时间使用默认值", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "d", []byte("v"), 0))
		*now = now.Add(59 * time.Minute)
		_, err := c.Get(ctx, "d")
		assert.NoError(t, err)
		*now = now.Add(time.Minute)
		_, err = c.Get(ctx, "d")
		assert.ErrorIs(t, err, storage.ErrCacheMiss)
	})
}

func TestLocalCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(2)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "long", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "new", []byte("3"), time.Hour))

	assert.Equal(t, 2, c.Len())
	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)
	_, err = c.Get(ctx, "long")
	assert.NoError(t, err)

	// 覆盖已有键不触发淘汰
	require.NoError(t, c.Set(ctx, "long", []byte("4"), time.Hour))
	assert.Equal(t, 2, c.Len())
}

func TestLocalCache_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	c, now := newTestCache(0)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))

	*now = now.Add(time.Minute)
	c.purgeExpired()

	assert.Equal(t, 1, c.Len())
	c.Delete("b")
	assert.Equal(t, 0, c.Len())
}
