package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivadaviam/AI.me/pkg/graph"
)

func testSnapshot(t *testing.T, id string, seq int64) *graph.Snapshot {
	t.Helper()
	snap, err := graph.NewSnapshot(graph.GraphID(id), seq, []*graph.Node{
		{ID: "n1", Type: "Concept"},
	}, nil)
	require.NoError(t, err)
	return snap
}

func TestSnapshotCachePutGet(t *testing.T) {
	c := NewSnapshotCache(4, 0)

	snap := testSnapshot(t, "kb", 1)
	c.Put("kb@1", snap)

	got, ok := c.Get("kb@1")
	require.True(t, ok)
	assert.Same(t, snap, got)

	_, ok = c.Get("kb@2")
	assert.False(t, ok)
}

func TestSnapshotCacheLRUEviction(t *testing.T) {
	c := NewSnapshotCache(2, 0)

	c.Put("kb@1", testSnapshot(t, "kb", 1))
	c.Put("kb@2", testSnapshot(t, "kb", 2))

	// Touch kb@1 so kb@2 becomes the eviction candidate.
	_, ok := c.Get("kb@1")
	require.True(t, ok)

	c.Put("kb@3", testSnapshot(t, "kb", 3))

	_, ok = c.Get("kb@1")
	assert.True(t, ok)
	_, ok = c.Get("kb@2")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("kb@3")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestSnapshotCacheUpdateExisting(t *testing.T) {
	c := NewSnapshotCache(2, 0)

	first := testSnapshot(t, "kb", 1)
	second := testSnapshot(t, "kb", 1)
	c.Put("kb@1", first)
	c.Put("kb@1", second)

	got, ok := c.Get("kb@1")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, c.Len())
}

func TestSnapshotCacheTTLExpiry(t *testing.T) {
	c := NewSnapshotCache(4, time.Nanosecond)

	c.Put("kb@1", testSnapshot(t, "kb", 1))
	time.Sleep(time.Millisecond)

	_, ok := c.Get("kb@1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestSnapshotCacheClear(t *testing.T) {
	c := NewSnapshotCache(8, 0)
	for i := int64(1); i <= 3; i++ {
		c.Put(fmt.Sprintf("kb@%d", i), testSnapshot(t, "kb", i))
	}

	c.Clear()
	assert.Equal(t, 0, c.Len())

	_, ok := c.Get("kb@1")
	assert.False(t, ok)
}

func TestSnapshotCacheStats(t *testing.T) {
	c := NewSnapshotCache(4, 0)
	c.Put("kb@1", testSnapshot(t, "kb", 1))

	_, _ = c.Get("kb@1")
	_, _ = c.Get("kb@1")
	_, _ = c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 4, stats.MaxSize)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
}
