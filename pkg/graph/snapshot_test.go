package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot(t *testing.T) {
	t.Run("valid snapshot", func(t *testing.T) {
		nodes := []*Node{
			{ID: "b", Type: "Concept"},
			{ID: "a", Type: "Concept"},
		}
		edges := []*Edge{
			{ID: "e1", Source: "a", Target: "b", Label: "RELATES_TO"},
		}

		snap, err := NewSnapshot("kb", 1, nodes, edges)
		require.NoError(t, err)

		assert.Equal(t, GraphID("kb"), snap.GraphID())
		assert.Equal(t, int64(1), snap.Seq())
		assert.Equal(t, 2, snap.NodeCount())
		assert.Equal(t, 1, snap.EdgeCount())
	})

	t.Run("empty node id", func(t *testing.T) {
		_, err := NewSnapshot("kb", 1, []*Node{{ID: ""}}, nil)
		require.ErrorIs(t, err, ErrEmptyID)
	})

	t.Run("duplicate node id", func(t *testing.T) {
		nodes := []*Node{{ID: "a"}, {ID: "a"}}
		_, err := NewSnapshot("kb", 1, nodes, nil)
		require.ErrorIs(t, err, ErrDuplicateNode)
	})

	t.Run("duplicate edge id", func(t *testing.T) {
		nodes := []*Node{{ID: "a"}, {ID: "b"}}
		edges := []*Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e1", Source: "b", Target: "a"},
		}
		_, err := NewSnapshot("kb", 1, nodes, edges)
		require.ErrorIs(t, err, ErrDuplicateEdge)
	})

	t.Run("dangling edge", func(t *testing.T) {
		nodes := []*Node{{ID: "a"}}
		edges := []*Edge{{ID: "e1", Source: "a", Target: "missing"}}
		_, err := NewSnapshot("kb", 1, nodes, edges)
		require.ErrorIs(t, err, ErrDanglingEdge)
	})
}

func TestSnapshotOrdering(t *testing.T) {
	nodes := []*Node{{ID: "c"}, {ID: "a"}, {ID: "b"}}
	edges := []*Edge{
		{ID: "e2", Source: "b", Target: "c", Label: "X"},
		{ID: "e1", Source: "a", Target: "b", Label: "X"},
	}

	snap, err := NewSnapshot("kb", 1, nodes, edges)
	require.NoError(t, err)

	assert.Equal(t, []NodeID{"a", "b", "c"}, snap.NodeIDs())
	assert.Equal(t, []EdgeID{"e1", "e2"}, snap.EdgeIDs())

	got := snap.Nodes()
	require.Len(t, got, 3)
	assert.Equal(t, NodeID("a"), got[0].ID)
	assert.Equal(t, NodeID("c"), got[2].ID)
}

func TestSnapshotEdgesOf(t *testing.T) {
	nodes := []*Node{{ID: "hub"}, {ID: "a"}, {ID: "b"}, {ID: "c"}}
	edges := []*Edge{
		{ID: "e3", Source: "hub", Target: "c", Label: "LINKS"},
		{ID: "e1", Source: "a", Target: "hub", Label: "LINKS"},
		{ID: "e2", Source: "hub", Target: "b", Label: "DERIVES"},
	}

	snap, err := NewSnapshot("kb", 1, nodes, edges)
	require.NoError(t, err)

	t.Run("sorted by label then neighbor", func(t *testing.T) {
		adj := snap.EdgesOf("hub")
		require.Len(t, adj, 3)
		assert.Equal(t, EdgeID("e2"), adj[0].ID) // DERIVES before LINKS
		assert.Equal(t, EdgeID("e1"), adj[1].ID) // neighbor a before c
		assert.Equal(t, EdgeID("e3"), adj[2].ID)
	})

	t.Run("direction ignored", func(t *testing.T) {
		adj := snap.EdgesOf("a")
		require.Len(t, adj, 1)
		assert.Equal(t, NodeID("hub"), adj[0].Other("a"))
	})

	t.Run("unknown node", func(t *testing.T) {
		assert.Empty(t, snap.EdgesOf("nope"))
	})
}

func TestNodeClone(t *testing.T) {
	n := &Node{
		ID:         "a",
		Type:       "Fact",
		Properties: map[string]any{"name": "alpha"},
		Source:     "doc",
		Verified:   true,
		Confidence: 0.9,
	}

	c := n.Clone()
	c.Properties["name"] = "changed"

	assert.Equal(t, "alpha", n.Properties["name"])
	assert.Equal(t, "alpha", n.Name())
	assert.True(t, n.HasSource())
	assert.False(t, n.HasTimestamp())
}
