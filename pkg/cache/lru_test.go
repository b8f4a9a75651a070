package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache_GetPut(t *testing.T) {
	t.Parallel()

	c := NewLRUCache[string, int](2)
	c.Put("a", 1)
	c.Put("a", 2)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := NewLRUCache[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // b is now the oldest
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUCache_TTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string, string](4)
	c.now = func() time.Time { return now }

	c.PutWithTTL("cert", "pem", time.Minute)
	_, ok := c.Get("cert")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get("cert")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUCache_Remove(t *testing.T) {
	t.Parallel()

	c := NewLRUCache[int, int](2)
	c.Put(1, 1)
	assert.True(t, c.Remove(1))
	assert.False(t, c.Remove(1))
}

func TestLRUCache_Concurrent(t *testing.T) {
	t.Parallel()

	c := NewLRUCache[int, int](16)
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Put(i, i)
			c.Get(i)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}

func TestNewLRUCache_PanicsOnZeroCapacity(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { NewLRUCache[string, int](0) })
}
