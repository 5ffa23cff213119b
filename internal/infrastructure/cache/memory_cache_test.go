package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheGetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, err := c.Get(ctx, "ad:1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "ad:1", `{"id":1}`, time.Minute))
	v, err := c.Get(ctx, "ad:1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, v)

	require.NoError(t, c.Delete(ctx, "ad:1"))
	_, err = c.Get(ctx, "ad:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiryAndSetNX(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	ok, err := c.SetNX(ctx, "idem", "pending", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "idem", "again", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = c.SetNX(ctx, "idem", "again", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := c.Get(ctx, "idem")
	require.NoError(t, err)
	assert.Equal(t, "again", v)
}
