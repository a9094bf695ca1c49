package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func byteCost(b []byte) int64 { return int64(len(b)) }

func TestGetSet(t *testing.T) {
	c := New[string, []byte](64, byteCost)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", []byte("hello"))
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), got)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, []byte](10, byteCost)

	c.Set("a", []byte("aaaa")) // 4
	c.Set("b", []byte("bbbb")) // 4

	// Touch "a" so "b" is the eviction candidate.
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Set("c", []byte("cccc")) // 4, forces eviction of "b"

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestOversizedValueNotCached(t *testing.T) {
	c := New[string, []byte](4, byteCost)
	c.Set("big", []byte("too large to fit"))
	_, ok := c.Get("big")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestUpdateAdjustsSize(t *testing.T) {
	c := New[string, []byte](16, byteCost)
	c.Set("a", []byte("aaaaaaaa")) // 8
	c.Set("a", []byte("aa"))       // 2
	assert.Equal(t, int64(2), c.Size())

	c.Set("a", []byte("aaaaaaaaaaaaaaaa")) // 16, still fits
	assert.Equal(t, int64(16), c.Size())
	assert.Equal(t, 1, c.Len())
}

func TestPurge(t *testing.T) {
	c := New[string, []byte](64, byteCost)
	c.Set("a", []byte("x"))
	c.Set("b", []byte("y"))
	c.Purge()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Size())
}

func TestDefaultCost(t *testing.T) {
	c := New[int, string](2, nil)
	c.Set(1, "one")
	c.Set(2, "two")
	c.Set(3, "three")
	assert.Equal(t, 2, c.Len())
}
