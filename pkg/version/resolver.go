package version

import (
	"context"
	"fmt"
	"time"

	"github.com/rivadaviam/AI.me/pkg/graph"
)

// Source supplies the version records and snapshots the resolver reads.
// *storage.Store implementations satisfy it.
type Source interface {
	// Versions returns every version of the graph in ascending seq
	// order, or ErrNotFound via errors.Is when the graph is unknown.
	Versions(ctx context.Context, graphID graph.GraphID) ([]*Version, error)
	// Snapshot loads the snapshot published at (graphID, seq).
	Snapshot(ctx context.Context, graphID graph.GraphID, seq int64) (*graph.Snapshot, error)
}

// Resolver maps (graph, requested version) pairs onto concrete snapshots.
//
// A request names either an explicit sequence number, a point in time, or
// nothing at all, in which case the latest non-expired version wins.
type Resolver struct {
	src Source

	// now is swappable for tests.
	now func() time.Time
}

// NewResolver returns a resolver reading from src.
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src, now: time.Now}
}

// Resolve returns the version record and snapshot for the request.
//
// seq > 0 requests that exact version: missing versions return ErrNotFound
// and expired ones ErrExpired. seq <= 0 requests the latest version,
// skipping any that have expired.
func (r *Resolver) Resolve(ctx context.Context, graphID graph.GraphID, seq int64) (*Version, *graph.Snapshot, error) {
	versions, err := r.src.Versions(ctx, graphID)
	if err != nil {
		return nil, nil, err
	}
	if len(versions) == 0 {
		return nil, nil, fmt.Errorf("graph %q: %w", graphID, ErrNotFound)
	}

	if seq > 0 {
		v := find(versions, seq)
		if v == nil {
			return nil, nil, fmt.Errorf("graph %q seq %d: %w", graphID, seq, ErrNotFound)
		}
		if v.Expired(r.now()) {
			return nil, nil, fmt.Errorf("graph %q seq %d: %w", graphID, seq, ErrExpired)
		}
		return r.load(ctx, v)
	}

	now := r.now()
	for i := len(versions) - 1; i >= 0; i-- {
		if !versions[i].Expired(now) {
			return r.load(ctx, versions[i])
		}
	}
	return nil, nil, fmt.Errorf("graph %q: all versions expired: %w", graphID, ErrExpired)
}

// ResolveAt returns the version that was current at the given instant:
// the newest version created at or before it and not yet expired then.
// ErrExpired means versions existed at that instant but all had lapsed;
// ErrNotFound means none had been created yet.
func (r *Resolver) ResolveAt(ctx context.Context, graphID graph.GraphID, at time.Time) (*Version, *graph.Snapshot, error) {
	versions, err := r.src.Versions(ctx, graphID)
	if err != nil {
		return nil, nil, err
	}

	lapsed := false
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		if v.CreatedAt.After(at) {
			continue
		}
		if v.Expired(at) {
			lapsed = true
			continue
		}
		return r.load(ctx, v)
	}
	if lapsed {
		return nil, nil, fmt.Errorf("graph %q at %s: %w", graphID, at.UTC().Format(time.RFC3339), ErrExpired)
	}
	return nil, nil, fmt.Errorf("graph %q at %s: %w", graphID, at.UTC().Format(time.RFC3339), ErrNotFound)
}

func (r *Resolver) load(ctx context.Context, v *Version) (*Version, *graph.Snapshot, error) {
	snap, err := r.src.Snapshot(ctx, v.GraphID, v.Seq)
	if err != nil {
		return nil, nil, err
	}
	return v, snap, nil
}

func find(versions []*Version, seq int64) *Version {
	for _, v := range versions {
		if v.Seq == seq {
			return v
		}
	}
	return nil
}

// Diff lists what changed between two versions of the same graph.
type Diff struct {
	GraphID graph.GraphID `json:"graph_id"`
	From    int64         `json:"from"`
	To      int64         `json:"to"`

	AddedNodes   []graph.NodeID `json:"added_nodes"`
	RemovedNodes []graph.NodeID `json:"removed_nodes"`
	AddedEdges   []graph.EdgeID `json:"added_edges"`
	RemovedEdges []graph.EdgeID `json:"removed_edges"`
}

// DiffVersions compares version from against version to. ID slices come
// back sorted.
func (r *Resolver) DiffVersions(ctx context.Context, graphID graph.GraphID, from, to int64) (*Diff, error) {
	a, err := r.src.Snapshot(ctx, graphID, from)
	if err != nil {
		return nil, fmt.Errorf("diff from: %w", err)
	}
	b, err := r.src.Snapshot(ctx, graphID, to)
	if err != nil {
		return nil, fmt.Errorf("diff to: %w", err)
	}

	d := &Diff{
		GraphID:      graphID,
		From:         from,
		To:           to,
		AddedNodes:   []graph.NodeID{},
		RemovedNodes: []graph.NodeID{},
		AddedEdges:   []graph.EdgeID{},
		RemovedEdges: []graph.EdgeID{},
	}

	for _, id := range b.NodeIDs() {
		if _, ok := a.Node(id); !ok {
			d.AddedNodes = append(d.AddedNodes, id)
		}
	}
	for _, id := range a.NodeIDs() {
		if _, ok := b.Node(id); !ok {
			d.RemovedNodes = append(d.RemovedNodes, id)
		}
	}
	for _, id := range b.EdgeIDs() {
		if _, ok := a.Edge(id); !ok {
			d.AddedEdges = append(d.AddedEdges, id)
		}
	}
	for _, id := range a.EdgeIDs() {
		if _, ok := b.Edge(id); !ok {
			d.RemovedEdges = append(d.RemovedEdges, id)
		}
	}

	return d, nil
}
