package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rivadaviam/AI.me/pkg/graph"
	"github.com/rivadaviam/AI.me/pkg/version"
)

// MemoryStore keeps every published version in RAM.
//
// Snapshots are built once at publication time and handed out as-is, so
// reads are map lookups under a read lock. Data is lost when the process
// exits; use the Badger engine for durability.
type MemoryStore struct {
	mu     sync.RWMutex
	closed bool

	versions  map[graph.GraphID][]*version.Version
	snapshots map[graph.GraphID]map[int64]*graph.Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions:  make(map[graph.GraphID][]*version.Version),
		snapshots: make(map[graph.GraphID]map[int64]*graph.Snapshot),
	}
}

// PublishVersion freezes pub as the next version of its graph.
func (m *MemoryStore) PublishVersion(ctx context.Context, pub Publication) (*version.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validatePublication(&pub); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	seq := int64(len(m.versions[pub.GraphID])) + 1
	nodes, edges := pub.clone()
	snap, err := graph.NewSnapshot(pub.GraphID, seq, nodes, edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}

	v := newVersionRecord(&pub, seq, snap, time.Now())
	m.versions[pub.GraphID] = append(m.versions[pub.GraphID], v)
	if m.snapshots[pub.GraphID] == nil {
		m.snapshots[pub.GraphID] = make(map[int64]*graph.Snapshot)
	}
	m.snapshots[pub.GraphID][seq] = snap

	return v, nil
}

// Snapshot returns the published snapshot at (graphID, seq).
func (m *MemoryStore) Snapshot(ctx context.Context, graphID graph.GraphID, seq int64) (*graph.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	snap, ok := m.snapshots[graphID][seq]
	if !ok {
		return nil, fmt.Errorf("graph %q seq %d: %w", graphID, seq, ErrNotFound)
	}
	return snap, nil
}

// Versions returns the graph's version records in ascending seq order.
func (m *MemoryStore) Versions(ctx context.Context, graphID graph.GraphID) ([]*version.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	vs, ok := m.versions[graphID]
	if !ok {
		return nil, fmt.Errorf("graph %q: %w", graphID, ErrNotFound)
	}
	out := make([]*version.Version, len(vs))
	copy(out, vs)
	return out, nil
}

// LatestSeq returns the highest published sequence number of the graph.
func (m *MemoryStore) LatestSeq(ctx context.Context, graphID graph.GraphID) (int64, error) {
	vs, err := m.Versions(ctx, graphID)
	if err != nil {
		return 0, err
	}
	return vs[len(vs)-1].Seq, nil
}

// Graphs lists all graph IDs in ascending order.
func (m *MemoryStore) Graphs(ctx context.Context) ([]graph.GraphID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	out := make([]graph.GraphID, 0, len(m.versions))
	for id := range m.versions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Close marks the store closed. Idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
