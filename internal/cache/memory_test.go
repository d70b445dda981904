package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("get returns miss for absent key", func(t *testing.T) {
		c := NewMemoryCache()
		_, ok, err := c.Get(ctx, "missing")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("set then get round-trips", func(t *testing.T) {
		c := NewMemoryCache()
		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

		val, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("v"), val)
	})

	t.Run("expired entries are misses", func(t *testing.T) {
		c := NewMemoryCache()
		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Nanosecond))
		time.Sleep(2 * time.Millisecond)

		_, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("delete removes key", func(t *testing.T) {
		c := NewMemoryCache()
		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
		require.NoError(t, c.Delete(ctx, "k"))

		_, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.False(t, ok)

		// Deleting an absent key is fine.
		require.NoError(t, c.Delete(ctx, "k"))
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		c := NewMemoryCache()
		require.NoError(t, c.Set(ctx, "k", []byte("abc"), time.Minute))

		val, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		val[0] = 'z'

		again, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("abc"), again)
	})

	t.Run("safe under concurrent access", func(t *testing.T) {
		c := NewMemoryCache()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					_ = c.Set(ctx, "shared", []byte("v"), time.Minute)
					_, _, _ = c.Get(ctx, "shared")
					_ = c.Delete(ctx, "shared")
				}
			}()
		}
		wg.Wait()
	})
}
