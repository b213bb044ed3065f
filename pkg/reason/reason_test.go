package reason

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivadaviam/AI.me/pkg/audit"
	"github.com/rivadaviam/AI.me/pkg/extract"
	"github.com/rivadaviam/AI.me/pkg/graph"
	"github.com/rivadaviam/AI.me/pkg/storage"
	"github.com/rivadaviam/AI.me/pkg/validate"
	"github.com/rivadaviam/AI.me/pkg/version"
)

func newTestOrchestrator(t *testing.T, em *audit.Emitter) *Orchestrator {
	t.Helper()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	ts := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	grounded := func(id graph.NodeID, name string) *graph.Node {
		return &graph.Node{
			ID:         id,
			Type:       "Concept",
			Source:     "handbook",
			Timestamp:  ts,
			Verified:   true,
			Confidence: 0.9,
			Properties: map[string]any{"name": name},
		}
	}

	_, err := store.PublishVersion(context.Background(), storage.Publication{
		GraphID: "kb",
		Kind:    version.KindMajor,
		Nodes: []*graph.Node{
			grounded("ml", "machine learning"),
			grounded("ai", "artificial intelligence"),
			{ID: "gossip", Type: "Rumor", Properties: map[string]any{"name": "hearsay"}},
		},
		Edges: []*graph.Edge{
			{ID: "e1", Source: "ml", Target: "ai", Label: "SUBSET_OF"},
		},
	})
	require.NoError(t, err)

	return New(
		version.NewResolver(store),
		extract.New(extract.Options{}),
		validate.New(validate.Config{}),
		em,
	)
}

func kinds(events []*audit.Event) []audit.Kind {
	out := make([]audit.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestExecuteGrounded(t *testing.T) {
	em := audit.NewEmitterWithWriter(&bytes.Buffer{}, audit.Config{Enabled: true})
	o := newTestOrchestrator(t, em)

	d, err := o.Execute(context.Background(), Request{
		GraphID:   "kb",
		Query:     "machine learning",
		SessionID: "s1",
	})
	require.NoError(t, err)

	assert.True(t, d.Grounded)
	assert.NotEmpty(t, d.CorrelationID)
	assert.Equal(t, graph.GraphID("kb"), d.GraphID)
	assert.Equal(t, int64(1), d.Seq)
	assert.NotEmpty(t, d.Triples)
	assert.True(t, d.Report.Valid)

	trace := em.Trace("s1")
	assert.Equal(t, []audit.Kind{
		audit.KindSnapshotResolved,
		audit.KindSubgraphExtracted,
		audit.KindSubgraphValidated,
		audit.KindDecisionMade,
	}, kinds(trace))
	for _, e := range trace {
		assert.Equal(t, d.CorrelationID, e.CorrelationID)
		assert.Equal(t, "kb", e.GraphID)
	}
}

func TestExecuteUngrounded(t *testing.T) {
	em := audit.NewEmitterWithWriter(&bytes.Buffer{}, audit.Config{Enabled: true})
	o := newTestOrchestrator(t, em)

	// The rumor node has no provenance, so the subgraph scores low.
	d, err := o.Execute(context.Background(), Request{
		GraphID:   "kb",
		Query:     "hearsay",
		SessionID: "s1",
	})
	require.NoError(t, err)

	assert.False(t, d.Grounded)
	assert.Empty(t, d.Triples, "ungrounded decisions never export triples")
	assert.ErrorIs(t, d.Report.Err(), validate.ErrValidationFailed)

	// Still a full pipeline: four events, ending in DECISION_MADE.
	trace := em.Trace("s1")
	require.Len(t, trace, 4)
	assert.Equal(t, audit.KindDecisionMade, trace[3].Kind)
	assert.Equal(t, false, trace[3].Details["grounded"])
}

func TestExecuteThresholdOverride(t *testing.T) {
	em := audit.NewEmitterWithWriter(&bytes.Buffer{}, audit.Config{Enabled: true})
	o := newTestOrchestrator(t, em)

	// The rumor subgraph fails the default 0.7 threshold but passes a
	// permissive one.
	strict, err := o.Execute(context.Background(), Request{
		GraphID: "kb",
		Query:   "hearsay",
	})
	require.NoError(t, err)
	require.False(t, strict.Grounded)

	lax, err := o.Execute(context.Background(), Request{
		GraphID:   "kb",
		Query:     "hearsay",
		Threshold: 0.2,
	})
	require.NoError(t, err)
	assert.True(t, lax.Grounded)
	assert.InDelta(t, strict.Report.Score, lax.Report.Score, 1e-9)
	assert.NotEmpty(t, lax.Triples)
}

func TestExecuteEmptySubgraph(t *testing.T) {
	em := audit.NewEmitterWithWriter(&bytes.Buffer{}, audit.Config{Enabled: true})
	o := newTestOrchestrator(t, em)

	d, err := o.Execute(context.Background(), Request{
		GraphID: "kb",
		Query:   "quantum basket weaving",
	})
	require.NoError(t, err)

	assert.False(t, d.Grounded)
	assert.Zero(t, d.Report.Score)
	assert.Contains(t, d.Report.Issues, validate.IssueNoMatchingNodes)
}

func TestExecuteUnknownGraph(t *testing.T) {
	em := audit.NewEmitterWithWriter(&bytes.Buffer{}, audit.Config{Enabled: true})
	o := newTestOrchestrator(t, em)

	_, err := o.Execute(context.Background(), Request{
		GraphID:   "missing",
		Query:     "anything",
		SessionID: "s1",
	})
	require.ErrorIs(t, err, version.ErrNotFound)

	trace := em.Trace("s1")
	require.Len(t, trace, 1)
	assert.Equal(t, audit.KindError, trace[0].Kind)
	assert.Equal(t, string(StateResolving), trace[0].Details["stage"])
}

func TestExecuteInvalidFilter(t *testing.T) {
	em := audit.NewEmitterWithWriter(&bytes.Buffer{}, audit.Config{Enabled: true})
	o := newTestOrchestrator(t, em)

	_, err := o.Execute(context.Background(), Request{
		GraphID:   "kb",
		Query:     "machine",
		Filters:   map[string]any{"flavor": "spicy"},
		SessionID: "s1",
	})
	require.ErrorIs(t, err, extract.ErrInvalidFilter)

	trace := em.Trace("s1")
	// One event for the resolved snapshot, one for the error.
	require.Len(t, trace, 2)
	assert.Equal(t, audit.KindError, trace[1].Kind)
	assert.Equal(t, string(StateExtracting), trace[1].Details["stage"])
}

func TestExecuteExpiredVersion(t *testing.T) {
	em := audit.NewEmitterWithWriter(&bytes.Buffer{}, audit.Config{Enabled: true})

	store := storage.NewMemoryStore()
	defer store.Close()
	_, err := store.PublishVersion(context.Background(), storage.Publication{
		GraphID:   "kb",
		Kind:      version.KindTemporal,
		ExpiresAt: time.Now().Add(-time.Hour),
		Nodes:     []*graph.Node{{ID: "a"}},
	})
	require.NoError(t, err)

	o := New(version.NewResolver(store), extract.New(extract.Options{}),
		validate.New(validate.Config{}), em)

	_, err = o.Execute(context.Background(), Request{GraphID: "kb", Seq: 1, Query: "a"})
	require.ErrorIs(t, err, version.ErrExpired)
}

func TestExecuteCancelled(t *testing.T) {
	em := audit.NewEmitterWithWriter(&bytes.Buffer{}, audit.Config{Enabled: true})
	o := newTestOrchestrator(t, em)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Execute(ctx, Request{GraphID: "kb", Query: "machine", SessionID: "s1"})
	require.ErrorIs(t, err, context.Canceled)

	trace := em.Trace("s1")
	require.Len(t, trace, 1)
	assert.Equal(t, audit.KindError, trace[0].Kind)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, assert.AnError
}

func TestExecuteAuditWriteFailure(t *testing.T) {
	em := audit.NewEmitterWithWriter(failingWriter{}, audit.Config{Enabled: true})
	o := newTestOrchestrator(t, em)

	_, err := o.Execute(context.Background(), Request{GraphID: "kb", Query: "machine"})
	require.ErrorIs(t, err, audit.ErrWriteFailed)
	assert.Zero(t, em.Len())
}
