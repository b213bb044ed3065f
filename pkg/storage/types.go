// Package storage persists published graph versions.
//
// A Store is append-only at the version level: publishing freezes a set of
// nodes and edges into the next sequence number of a graph, and nothing
// ever rewrites or deletes a published version. Two engines implement the
// interface, an in-memory store for tests and ephemeral use and a
// BadgerDB-backed store for durable deployments.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rivadaviam/AI.me/pkg/graph"
	"github.com/rivadaviam/AI.me/pkg/version"
)

// Common storage errors.
var (
	// ErrNotFound indicates the graph or version does not exist. It is
	// the same sentinel as version.ErrNotFound so resolver callers can
	// test either through errors.Is.
	ErrNotFound = version.ErrNotFound
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store closed")
	// ErrInvalidData indicates a publication that cannot be stored.
	ErrInvalidData = errors.New("invalid publication")
)

// Publication is the input to PublishVersion: the full node and edge set
// of the next version of one graph.
type Publication struct {
	GraphID graph.GraphID
	Kind    version.Kind
	Summary string

	// ExpiresAt bounds the validity of temporal knowledge. Zero means
	// the version never expires.
	ExpiresAt time.Time

	Nodes []*graph.Node
	Edges []*graph.Edge
}

// Store is the engine interface for versioned graph persistence.
//
// Implementations must be safe for concurrent use. Publications to the
// same graph are serialized so sequence numbers stay gapless; reads never
// block behind a publication.
type Store interface {
	// PublishVersion freezes the publication as the next version of its
	// graph and returns the recorded metadata.
	PublishVersion(ctx context.Context, pub Publication) (*version.Version, error)

	// Snapshot loads the immutable snapshot at (graphID, seq).
	Snapshot(ctx context.Context, graphID graph.GraphID, seq int64) (*graph.Snapshot, error)

	// Versions returns every version of the graph in ascending seq order.
	Versions(ctx context.Context, graphID graph.GraphID) ([]*version.Version, error)

	// LatestSeq returns the highest published sequence number.
	LatestSeq(ctx context.Context, graphID graph.GraphID) (int64, error)

	// Graphs lists all known graph IDs in ascending order.
	Graphs(ctx context.Context) ([]graph.GraphID, error)

	// Close releases the engine's resources. Further calls on the store
	// return ErrStoreClosed.
	Close() error
}

// clone deep-copies the publication's elements so a caller mutating its
// slices after PublishVersion cannot reach into the frozen snapshot.
func (p *Publication) clone() (nodes []*graph.Node, edges []*graph.Edge) {
	if p.Nodes != nil {
		nodes = make([]*graph.Node, len(p.Nodes))
		for i, n := range p.Nodes {
			nodes[i] = n.Clone()
		}
	}
	if p.Edges != nil {
		edges = make([]*graph.Edge, len(p.Edges))
		for i, e := range p.Edges {
			edges[i] = e.Clone()
		}
	}
	return nodes, edges
}

func validatePublication(pub *Publication) error {
	if pub.GraphID == "" {
		return fmt.Errorf("empty graph id: %w", ErrInvalidData)
	}
	if _, err := version.ParseKind(string(pub.Kind)); err != nil {
		return err
	}
	return nil
}

func newVersionRecord(pub *Publication, seq int64, snap *graph.Snapshot, at time.Time) *version.Version {
	return &version.Version{
		GraphID:   pub.GraphID,
		Seq:       seq,
		Kind:      pub.Kind,
		Summary:   pub.Summary,
		CreatedAt: at.UTC(),
		ExpiresAt: pub.ExpiresAt,
		NodeCount: snap.NodeCount(),
		EdgeCount: snap.EdgeCount(),
	}
}
