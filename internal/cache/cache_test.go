package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheBasics(t *testing.T) {
	c := New[string](10, time.Minute)

	t.Run("miss then hit", func(t *testing.T) {
		_, ok := c.Get("a")
		assert.False(t, ok)

		c.Set("a", "one")
		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, "one", v)
	})

	t.Run("replace updates value", func(t *testing.T) {
		c.Set("a", "two")
		v, _ := c.Get("a")
		assert.Equal(t, "two", v)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("delete removes entry", func(t *testing.T) {
		c.Delete("a")
		_, ok := c.Get("a")
		assert.False(t, ok)
	})
}

func TestCacheCapacityBound(t *testing.T) {
	c := New[int](3, time.Minute)

	for i := 0; i < 4; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	// Never more than capacity; the earliest-inserted entry is gone.
	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("k0")
	assert.False(t, ok, "oldest entry should have been evicted")

	for i := 1; i < 4; i++ {
		_, ok := c.Get(fmt.Sprintf("k%d", i))
		assert.True(t, ok, "k%d should survive", i)
	}
}

func TestCacheEvictionIsInsertionOrder(t *testing.T) {
	c := New[int](2, time.Minute)

	c.Set("first", 1)
	c.Set("second", 2)

	// Access "first" so LRU would keep it; FIFO must still evict it.
	_, ok := c.Get("first")
	require.True(t, ok)

	c.Set("third", 3)

	_, ok = c.Get("first")
	assert.False(t, ok, "insertion-order eviction ignores access recency")
	_, ok = c.Get("second")
	assert.True(t, ok)
}

func TestCacheTTL(t *testing.T) {
	c := New[int](10, 20*time.Millisecond)

	c.Set("a", 1)
	time.Sleep(40 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok, "expired entry must read as a miss")
	assert.Equal(t, 0, c.Len(), "expired entry must be removed by the read")
}

func TestCacheCleanupExpired(t *testing.T) {
	c := New[int](10, 20*time.Millisecond)

	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(40 * time.Millisecond)
	c.Set("c", 3)

	removed := c.CleanupExpired()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())
}

func TestCacheClear(t *testing.T) {
	c := New[int](10, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	assert.Equal(t, 2, c.Clear())
	assert.Equal(t, 0, c.Len())
}

func TestCacheStats(t *testing.T) {
	c := New[int](2, time.Minute)

	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")
	c.Set("b", 2)
	c.Set("c", 3) // evicts "a"

	s := c.GetStats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.Evictions)
	assert.InDelta(t, 0.5, s.HitRate, 0.001)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[int](100, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", i%150)
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	// The bound must hold even under concurrent insert/evict races.
	assert.LessOrEqual(t, c.Len(), 100)
}
