package extract

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivadaviam/AI.me/pkg/graph"
)

func mustSnapshot(t *testing.T, nodes []*graph.Node, edges []*graph.Edge) *graph.Snapshot {
	t.Helper()
	snap, err := graph.NewSnapshot("kb", 1, nodes, edges)
	require.NoError(t, err)
	return snap
}

func nodeIDs(sg *graph.Subgraph) []graph.NodeID {
	out := make([]graph.NodeID, len(sg.Nodes))
	for i, n := range sg.Nodes {
		out[i] = n.ID
	}
	return out
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"machine", "learning"}, Terms("  Machine   LEARNING "))
	assert.Empty(t, Terms("   "))
}

func TestExtractSeeds(t *testing.T) {
	snap := mustSnapshot(t, []*graph.Node{
		{ID: "low", Type: "Concept", Confidence: 0.2,
			Properties: map[string]any{"name": "graph theory"}},
		{ID: "high", Type: "Concept", Confidence: 0.9,
			Properties: map[string]any{"name": "graph databases"}},
		{ID: "also-high", Type: "Concept", Confidence: 0.9,
			Properties: map[string]any{"name": "graph stores"}},
		{ID: "unrelated", Type: "Concept",
			Properties: map[string]any{"name": "pasta"}},
	}, nil)

	sg, err := New(Options{}).Extract(context.Background(), snap, "graph", nil)
	require.NoError(t, err)

	// Confidence descending, ID ascending on ties.
	assert.Equal(t, []graph.NodeID{"also-high", "high", "low"}, nodeIDs(sg))
}

func TestExtractIgnoresNodeID(t *testing.T) {
	// IDs are opaque handles; only names, types, and string properties
	// participate in matching.
	snap := mustSnapshot(t, []*graph.Node{
		{ID: "alpha-1", Type: "Concept",
			Properties: map[string]any{"name": "beta"}},
	}, nil)

	sg, err := New(Options{}).Extract(context.Background(), snap, "alpha", nil)
	require.NoError(t, err)
	assert.True(t, sg.Empty())
}

func TestExtractHops(t *testing.T) {
	// seed -> n1 -> n2 -> n3, only n1 and n2 are within two hops.
	nodes := []*graph.Node{
		{ID: "seed", Properties: map[string]any{"name": "alpha"}},
		{ID: "n1"}, {ID: "n2"}, {ID: "n3"},
	}
	edges := []*graph.Edge{
		{ID: "e1", Source: "seed", Target: "n1", Label: "L"},
		{ID: "e2", Source: "n1", Target: "n2", Label: "L"},
		{ID: "e3", Source: "n2", Target: "n3", Label: "L"},
	}
	snap := mustSnapshot(t, nodes, edges)

	sg, err := New(Options{}).Extract(context.Background(), snap, "alpha", nil)
	require.NoError(t, err)

	assert.Equal(t, []graph.NodeID{"seed", "n1", "n2"}, nodeIDs(sg))
	assert.Equal(t, 2, sg.EdgeCount())
	assert.Empty(t, sg.Warnings)

	t.Run("seeds only skips expansion", func(t *testing.T) {
		sg, err := New(Options{MaxNodes: 10, SeedsOnly: true}).
			Extract(context.Background(), snap, "alpha", nil)
		require.NoError(t, err)
		assert.Equal(t, []graph.NodeID{"seed"}, nodeIDs(sg))
		assert.Empty(t, sg.Edges)
	})

	t.Run("zero options take the default hop limit", func(t *testing.T) {
		sg, err := New(Options{}).Extract(context.Background(), snap, "alpha", nil)
		require.NoError(t, err)
		assert.Equal(t, []graph.NodeID{"seed", "n1", "n2"}, nodeIDs(sg))
	})
}

func TestExtractBudget(t *testing.T) {
	// A star: one matching hub with 10 neighbors, budget 4.
	nodes := []*graph.Node{{ID: "hub", Properties: map[string]any{"name": "alpha"}}}
	var edges []*graph.Edge
	for i := 0; i < 10; i++ {
		id := graph.NodeID(fmt.Sprintf("n%02d", i))
		nodes = append(nodes, &graph.Node{ID: id})
		edges = append(edges, &graph.Edge{
			ID:     graph.EdgeID(fmt.Sprintf("e%02d", i)),
			Source: "hub",
			Target: id,
			Label:  "L",
		})
	}
	snap := mustSnapshot(t, nodes, edges)

	sg, err := New(Options{MaxNodes: 4, MaxHops: 2}).
		Extract(context.Background(), snap, "alpha", nil)
	require.NoError(t, err)

	assert.Equal(t, 4, sg.NodeCount())
	assert.Equal(t, []string{WarnBudgetExceeded}, sg.Warnings)
	// Truncation keeps the lowest-sorted neighbors.
	assert.Equal(t, []graph.NodeID{"hub", "n00", "n01", "n02"}, nodeIDs(sg))
}

func TestExtractDeterministic(t *testing.T) {
	var nodes []*graph.Node
	var edges []*graph.Edge
	for i := 0; i < 30; i++ {
		nodes = append(nodes, &graph.Node{
			ID:         graph.NodeID(fmt.Sprintf("n%02d", i)),
			Confidence: float64(i%5) / 5,
			Properties: map[string]any{"name": fmt.Sprintf("topic %d", i)},
		})
	}
	for i := 0; i < 29; i++ {
		edges = append(edges, &graph.Edge{
			ID:     graph.EdgeID(fmt.Sprintf("e%02d", i)),
			Source: graph.NodeID(fmt.Sprintf("n%02d", i)),
			Target: graph.NodeID(fmt.Sprintf("n%02d", i+1)),
			Label:  "NEXT",
		})
	}
	snap := mustSnapshot(t, nodes, edges)
	x := New(Options{MaxNodes: 10, MaxHops: 2})

	first, err := x.Extract(context.Background(), snap, "topic", nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := x.Extract(context.Background(), snap, "topic", nil)
		require.NoError(t, err)
		assert.Equal(t, nodeIDs(first), nodeIDs(again))
		assert.Equal(t, len(first.Edges), len(again.Edges))
	}
}

func TestExtractNoMatches(t *testing.T) {
	snap := mustSnapshot(t, []*graph.Node{
		{ID: "a", Properties: map[string]any{"name": "alpha"}},
	}, nil)

	sg, err := New(Options{}).Extract(context.Background(), snap, "zzz", nil)
	require.NoError(t, err)
	assert.True(t, sg.Empty())

	sg, err = New(Options{}).Extract(context.Background(), snap, "", nil)
	require.NoError(t, err)
	assert.True(t, sg.Empty())
}

func TestExtractFilters(t *testing.T) {
	nodes := []*graph.Node{
		{ID: "a", Type: "Fact", Source: "handbook",
			Properties: map[string]any{"name": "alpha one"}},
		{ID: "b", Type: "Rumor", Source: "forum",
			Properties: map[string]any{"name": "alpha two"}},
		{ID: "c", Type: "Fact", Source: "handbook",
			Properties: map[string]any{
				"name":       "alpha three",
				"valid_until": "2024-01-01T00:00:00Z",
			}},
	}
	edges := []*graph.Edge{
		{ID: "e1", Source: "a", Target: "b", Label: "L"},
		{ID: "e2", Source: "a", Target: "c", Label: "L"},
	}
	snap := mustSnapshot(t, nodes, edges)
	ctx := context.Background()
	x := New(Options{})

	t.Run("by source", func(t *testing.T) {
		sg, err := x.Extract(ctx, snap, "alpha", &Filters{Sources: []string{"handbook"}})
		require.NoError(t, err)
		assert.Equal(t, []graph.NodeID{"a", "c"}, nodeIDs(sg))
		// The a-b edge lost its endpoint.
		require.Len(t, sg.Edges, 1)
		assert.Equal(t, graph.EdgeID("e2"), sg.Edges[0].ID)
	})

	t.Run("by node type", func(t *testing.T) {
		sg, err := x.Extract(ctx, snap, "alpha", &Filters{NodeTypes: []string{"Rumor"}})
		require.NoError(t, err)
		assert.Equal(t, []graph.NodeID{"b"}, nodeIDs(sg))
		assert.Empty(t, sg.Edges)
	})

	t.Run("by valid_until", func(t *testing.T) {
		f, err := ParseFilters(map[string]any{"valid_until": "2025-01-01T00:00:00Z"})
		require.NoError(t, err)

		sg, err := x.Extract(ctx, snap, "alpha", f)
		require.NoError(t, err)
		// c expired before the cutoff; a and b carry no expiry.
		assert.Equal(t, []graph.NodeID{"a", "b"}, nodeIDs(sg))
	})

	t.Run("valid_until equal to the bound is expired", func(t *testing.T) {
		// c's validity lapses exactly at the bound, so it is pruned
		// even though it seeded the traversal.
		sg, err := x.Extract(ctx, snap, "three",
			&Filters{ValidUntil: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
		require.NoError(t, err)
		assert.False(t, sg.Contains("c"))
		assert.Equal(t, []graph.NodeID{"a", "b"}, nodeIDs(sg))
	})
}

func TestParseFilters(t *testing.T) {
	t.Run("nil map", func(t *testing.T) {
		f, err := ParseFilters(nil)
		require.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("full map", func(t *testing.T) {
		f, err := ParseFilters(map[string]any{
			"sources":    []any{"handbook"},
			"node_types": []string{"Fact"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"handbook"}, f.Sources)
		assert.Equal(t, []string{"Fact"}, f.NodeTypes)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := ParseFilters(map[string]any{"flavor": "spicy"})
		require.ErrorIs(t, err, ErrInvalidFilter)
	})

	t.Run("wrong value shapes", func(t *testing.T) {
		_, err := ParseFilters(map[string]any{"sources": "handbook"})
		require.ErrorIs(t, err, ErrInvalidFilter)

		_, err = ParseFilters(map[string]any{"sources": []any{42}})
		require.ErrorIs(t, err, ErrInvalidFilter)

		_, err = ParseFilters(map[string]any{"valid_until": "yesterday"})
		require.ErrorIs(t, err, ErrInvalidFilter)
	})
}
