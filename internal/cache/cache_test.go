package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_InsertAndHit(t *testing.T) {
	c := New("pixmap", 100)

	assert.False(t, c.TryHit(1))
	evicted, ok := c.Insert(1, 40)
	require.True(t, ok)
	assert.Empty(t, evicted)
	assert.True(t, c.TryHit(1))

	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(40), st.Used)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New("pixmap", 100)
	c.Insert(1, 40)
	c.Insert(2, 40)
	c.TryHit(1)

	evicted, ok := c.Insert(3, 40)
	require.True(t, ok)
	assert.Equal(t, []uint64{2}, evicted)
	assert.True(t, c.Contains(1))
	assert.False(t, c.Contains(2))
	assert.True(t, c.Contains(3))
}

func TestCache_RejectsOversizeAndDuplicates(t *testing.T) {
	c := New("pixmap", 10)
	_, ok := c.Insert(1, 11)
	assert.False(t, ok)

	_, ok = c.Insert(2, 5)
	require.True(t, ok)
	_, ok = c.Insert(2, 5)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestCache_EvictSome(t *testing.T) {
	c := New("cursor", 4)
	for id := uint64(1); id <= 4; id++ {
		c.Insert(id, 1)
	}
	assert.Equal(t, []uint64{1, 2}, c.EvictSome(2))
	assert.Equal(t, 2, c.Len())
	assert.Empty(t, c.EvictSome(1), "enough room already")
}

func TestCache_RemoveAndReset(t *testing.T) {
	c := New("palette", 3)
	c.Insert(7, 1)
	assert.True(t, c.Remove(7))
	assert.False(t, c.Remove(7))

	c.Insert(8, 1)
	c.Reset(10)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(10), c.Stats().Capacity)
}

func TestCache_ConcurrentUse(t *testing.T) {
	c := New("pixmap", 1000)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base uint64) {
			defer wg.Done()
			for i := uint64(0); i < 100; i++ {
				c.Insert(base*1000+i, 3)
				c.TryHit(base*1000 + i/2)
			}
		}(uint64(g))
	}
	wg.Wait()
	st := c.Stats()
	assert.LessOrEqual(t, st.Used, int64(1000))
	assert.Equal(t, int64(st.Entries)*3, st.Used)
}
