package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(op string, args map[string]any, version uint64) Key {
	return Key{DocID: "doc", Op: op, Fingerprint: Fingerprint(args), Version: version}
}

func TestCacheHitAndMiss(t *testing.T) {
	c := New(8)
	args := map[string]any{"range": "A1:B10"}

	_, ok := c.Get(key("read_range", args, 3), 3)
	assert.False(t, ok, "cold cache must miss")

	c.Put(key("read_range", args, 3), "result")

	t.Run("same version hits", func(t *testing.T) {
		v, ok := c.Get(key("read_range", args, 3), 3)
		require.True(t, ok)
		assert.Equal(t, "result", v)
	})

	t.Run("different args miss", func(t *testing.T) {
		_, ok := c.Get(key("read_range", map[string]any{"range": "A1:B2"}, 3), 3)
		assert.False(t, ok)
	})

	t.Run("different op miss", func(t *testing.T) {
		_, ok := c.Get(key("preview", args, 3), 3)
		assert.False(t, ok)
	})
}

func TestVersionInvalidation(t *testing.T) {
	c := New(8)
	args := map[string]any{"ref": "A1"}

	c.Put(key("read_cell", args, 1), "old")

	// A mutation bumped the document to version 2; the version-1 entry
	// must be unreachable.
	_, ok := c.Get(key("read_cell", args, 1), 2)
	assert.False(t, ok, "stale version key must miss")
	_, ok = c.Get(key("read_cell", args, 2), 2)
	assert.False(t, ok, "no entry exists at the current version yet")

	c.Put(key("read_cell", args, 2), "new")
	v, ok := c.Get(key("read_cell", args, 2), 2)
	require.True(t, ok)
	assert.Equal(t, "new", v)

	t.Run("superseded entries are swept on miss", func(t *testing.T) {
		c2 := New(8)
		c2.Put(key("read_cell", args, 1), "old")
		_, _ = c2.Get(key("read_cell", args, 2), 2)
		assert.Zero(t, c2.Len(), "version-1 entry should be swept")
	})
}

func TestLRUEviction(t *testing.T) {
	c := New(3)
	for i := 0; i < 3; i++ {
		c.Put(key("op", map[string]any{"i": i}, 1), i)
	}
	require.Equal(t, 3, c.Len())

	// Touch entry 0 so entry 1 becomes the eviction candidate.
	_, ok := c.Get(key("op", map[string]any{"i": 0}, 1), 1)
	require.True(t, ok)

	c.Put(key("op", map[string]any{"i": 3}, 1), 3)
	assert.Equal(t, 3, c.Len())

	_, ok = c.Get(key("op", map[string]any{"i": 1}, 1), 1)
	assert.False(t, ok, "least recently used entry evicted")
	_, ok = c.Get(key("op", map[string]any{"i": 0}, 1), 1)
	assert.True(t, ok)
}

func TestZeroCapacityDisables(t *testing.T) {
	c := New(0)
	c.Put(key("op", nil, 1), "x")
	assert.Zero(t, c.Len())
}

func TestStats(t *testing.T) {
	c := New(4)
	k := key("op", map[string]any{"a": 1}, 1)
	c.Put(k, "v")
	c.Get(k, 1)
	c.Get(key("op", map[string]any{"a": 2}, 1), 1)
	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestFingerprint(t *testing.T) {
	t.Run("stable across map iteration order", func(t *testing.T) {
		a := map[string]any{"x": 1, "y": "two", "z": 3.0}
		for i := 0; i < 50; i++ {
			assert.Equal(t, Fingerprint(a), Fingerprint(map[string]any{"z": 3.0, "x": 1, "y": "two"}))
		}
	})

	t.Run("distinct args distinct prints", func(t *testing.T) {
		seen := make(map[uint64]string)
		for i := 0; i < 100; i++ {
			fp := Fingerprint(map[string]any{"i": i})
			prev, dup := seen[fp]
			require.False(t, dup, "collision between i=%d and %s", i, prev)
			seen[fp] = fmt.Sprintf("i=%d", i)
		}
	})

	t.Run("key and value are separated", func(t *testing.T) {
		assert.NotEqual(t,
			Fingerprint(map[string]any{"ab": "c"}),
			Fingerprint(map[string]any{"a": "bc"}))
	})
}
