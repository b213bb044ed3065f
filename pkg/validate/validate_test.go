package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivadaviam/AI.me/pkg/graph"
)

var ts = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func fullNode(id graph.NodeID) *graph.Node {
	return &graph.Node{
		ID:        id,
		Type:      "Fact",
		Source:    "handbook",
		Timestamp: ts,
		Verified:  true,
	}
}

func TestValidateWellGrounded(t *testing.T) {
	// Fully sourced, connected, verified: every component scores 1.
	nodes := []*graph.Node{fullNode("a"), fullNode("b"), fullNode("c")}
	edges := []*graph.Edge{
		{ID: "e1", Source: "a", Target: "b", Label: "L"},
		{ID: "e2", Source: "b", Target: "c", Label: "L"},
	}
	sg := graph.NewSubgraph("kb", 1, "q", nodes, edges)

	r := New(Config{}).Validate(sg)

	assert.InDelta(t, 1.0, r.Metadata, 1e-9)
	assert.InDelta(t, 1.0, r.Connectivity, 1e-9)
	assert.InDelta(t, 1.0, r.Verification, 1e-9)
	assert.InDelta(t, 1.0, r.Score, 1e-9)
	assert.True(t, r.Valid)
	assert.NoError(t, r.Err())
	assert.Empty(t, r.Issues)
}

func TestValidatePoorlyGrounded(t *testing.T) {
	// No provenance, no edges, nothing verified.
	nodes := []*graph.Node{
		{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"},
	}
	sg := graph.NewSubgraph("kb", 1, "q", nodes, nil)

	r := New(Config{}).Validate(sg)

	assert.InDelta(t, 0.0, r.Metadata, 1e-9)
	assert.InDelta(t, 0.25, r.Connectivity, 1e-9) // four singletons
	assert.InDelta(t, 0.0, r.Verification, 1e-9)
	assert.InDelta(t, 0.075, r.Score, 1e-9)
	assert.False(t, r.Valid)
	require.Error(t, r.Err())
	assert.ErrorIs(t, r.Err(), ErrValidationFailed)
	// The warning is reserved for reports that pass.
	assert.NotContains(t, r.Warnings, WarnLowVerification)
}

func TestValidateLowVerificationWarning(t *testing.T) {
	// Provenance and connectivity carry the score past the threshold
	// with only one node of three verified.
	a := fullNode("a")
	b := fullNode("b")
	c := fullNode("c")
	b.Verified = false
	c.Verified = false
	edges := []*graph.Edge{
		{ID: "e1", Source: "a", Target: "b", Label: "L"},
		{ID: "e2", Source: "b", Target: "c", Label: "L"},
	}
	sg := graph.NewSubgraph("kb", 1, "q", []*graph.Node{a, b, c}, edges)

	r := New(Config{}).Validate(sg)

	assert.InDelta(t, 0.4+0.3+0.3/3, r.Score, 1e-9)
	assert.True(t, r.Valid)
	assert.Contains(t, r.Warnings, WarnLowVerification)
}

func TestValidateMixed(t *testing.T) {
	// Half the nodes carry provenance, one of two components, half verified.
	nodes := []*graph.Node{
		fullNode("a"),
		fullNode("b"),
		{ID: "c"},
		{ID: "d"},
	}
	edges := []*graph.Edge{
		{ID: "e1", Source: "a", Target: "b", Label: "L"},
		{ID: "e2", Source: "a", Target: "c", Label: "L"},
	}
	sg := graph.NewSubgraph("kb", 1, "q", nodes, edges)

	r := New(Config{}).Validate(sg)

	assert.InDelta(t, 0.5, r.Metadata, 1e-9)
	assert.InDelta(t, 0.75, r.Connectivity, 1e-9) // {a,b,c} of 4
	assert.InDelta(t, 0.5, r.Verification, 1e-9)
	assert.InDelta(t, 0.4*0.5+0.3*0.75+0.3*0.5, r.Score, 1e-9)
	assert.False(t, r.Valid) // 0.575 < 0.7
}

func TestValidateDisconnectedPair(t *testing.T) {
	// Two fully grounded nodes with no edge between them: only
	// connectivity suffers.
	sg := graph.NewSubgraph("kb", 1, "q", []*graph.Node{fullNode("a"), fullNode("b")}, nil)

	r := New(Config{}).Validate(sg)

	assert.InDelta(t, 1.0, r.Metadata, 1e-9)
	assert.InDelta(t, 0.5, r.Connectivity, 1e-9)
	assert.InDelta(t, 1.0, r.Verification, 1e-9)
	assert.InDelta(t, 0.4+0.3*0.5+0.3, r.Score, 1e-9)
	assert.True(t, r.Valid) // 0.85 still clears 0.7
}

func TestValidateEmptySubgraph(t *testing.T) {
	sg := graph.NewSubgraph("kb", 1, "q", nil, nil)

	r := New(Config{}).Validate(sg)

	assert.Zero(t, r.Score)
	assert.False(t, r.Valid)
	assert.Equal(t, []string{IssueNoMatchingNodes}, r.Issues)
}

func TestValidateBrokenEdge(t *testing.T) {
	nodes := []*graph.Node{fullNode("a")}
	edges := []*graph.Edge{{ID: "e1", Source: "a", Target: "ghost", Label: "L"}}
	sg := graph.NewSubgraph("kb", 1, "q", nodes, edges)

	r := New(Config{}).Validate(sg)

	assert.Contains(t, r.Issues, IssueBrokenEdge)
	assert.False(t, r.Valid)
}

func TestValidateCarriesWarnings(t *testing.T) {
	sg := graph.NewSubgraph("kb", 1, "q", []*graph.Node{fullNode("a")}, nil)
	sg.AddWarning("traversal truncated: node budget exceeded")

	r := New(Config{}).Validate(sg)

	assert.Contains(t, r.Warnings, "traversal truncated: node budget exceeded")
	assert.True(t, r.Valid)
}

func TestValidateCustomConfig(t *testing.T) {
	t.Run("lower threshold passes", func(t *testing.T) {
		nodes := []*graph.Node{fullNode("a"), {ID: "b"}}
		edges := []*graph.Edge{{ID: "e1", Source: "a", Target: "b", Label: "L"}}
		sg := graph.NewSubgraph("kb", 1, "q", nodes, edges)

		strict := New(Config{}).Validate(sg)
		assert.False(t, strict.Valid)

		lax := New(Config{Threshold: 0.5}).Validate(sg)
		assert.True(t, lax.Valid)
		assert.InDelta(t, strict.Score, lax.Score, 1e-9)
	})

	t.Run("custom weights", func(t *testing.T) {
		sg := graph.NewSubgraph("kb", 1, "q", []*graph.Node{{ID: "a"}}, nil)

		r := New(Config{Weights: Weights{Connectivity: 1}}).Validate(sg)
		assert.InDelta(t, 1.0, r.Score, 1e-9)
		assert.True(t, r.Valid)
	})
}
