// Package graph defines the semantic-graph data model for AI.me.
//
// The model is a labeled property graph frozen into immutable, versioned
// snapshots. Nodes carry the metadata the groundedness scorer reads
// (source, timestamp, verified, confidence); edges are directed, labeled,
// and weighted. A Snapshot is the unit of publication: once built it is
// never mutated, so concurrent readers share it freely.
//
// Example Usage:
//
//	nodes := []*graph.Node{
//		{ID: "concept-ml", Type: "Concept", Source: "handbook", Verified: true},
//		{ID: "concept-ai", Type: "Concept", Source: "handbook", Verified: true},
//	}
//	edges := []*graph.Edge{
//		{ID: "e1", Source: "concept-ml", Target: "concept-ai", Label: "SUBSET_OF"},
//	}
//
//	snap, err := graph.NewSnapshot("kb", 1, nodes, edges)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	n, ok := snap.Node("concept-ml")
//	fmt.Println(n.Type, ok)
package graph

import (
	"errors"
	"time"
)

// Errors returned when assembling snapshots.
var (
	ErrEmptyID       = errors.New("empty identifier")
	ErrDuplicateNode = errors.New("duplicate node id")
	ErrDuplicateEdge = errors.New("duplicate edge id")
	ErrDanglingEdge  = errors.New("edge endpoint not in snapshot")
)

// GraphID identifies a logical graph across all of its versions.
type GraphID string

// NodeID is a strongly-typed unique identifier for graph nodes.
// Unique within one snapshot.
type NodeID string

// EdgeID is a strongly-typed unique identifier for graph edges.
type EdgeID string

// Well-known property keys understood by the extractor and scorer.
const (
	PropName       = "name"
	PropValidUntil = "valid_until"
)

// Node represents a single entity in a graph snapshot.
//
// The metadata fields (Source, Timestamp, Verified, Confidence) are promoted
// out of the property map because the groundedness scorer and the seed
// matcher read them on every query. Everything else lives in Properties.
//
// Nodes are immutable once part of a published snapshot; callers must not
// modify a Node obtained from a Snapshot.
type Node struct {
	ID         NodeID         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`

	// Provenance metadata read by the validator.
	Source     string    `json:"source,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
	Verified   bool      `json:"verified"`
	Confidence float64   `json:"confidence"`
}

// Name returns the node's name property, or the empty string.
func (n *Node) Name() string {
	if v, ok := n.Properties[PropName].(string); ok {
		return v
	}
	return ""
}

// HasSource reports whether provenance source metadata is present.
func (n *Node) HasSource() bool { return n.Source != "" }

// HasTimestamp reports whether provenance timestamp metadata is present.
func (n *Node) HasTimestamp() bool { return !n.Timestamp.IsZero() }

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	if n.Properties != nil {
		c.Properties = make(map[string]any, len(n.Properties))
		for k, v := range n.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}

// Edge represents a directed, labeled relationship between two nodes of the
// same snapshot. Both endpoints must exist in the snapshot; NewSnapshot
// rejects dangling edges.
type Edge struct {
	ID         EdgeID         `json:"id"`
	Source     NodeID         `json:"source"`
	Target     NodeID         `json:"target"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`

	Weight     float64   `json:"weight,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
}

// Other returns the endpoint of e that is not id. If id is not an endpoint
// the target is returned.
func (e *Edge) Other(id NodeID) NodeID {
	if e.Source == id {
		return e.Target
	}
	return e.Source
}

// Clone returns a deep copy of the edge.
func (e *Edge) Clone() *Edge {
	c := *e
	if e.Properties != nil {
		c.Properties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}
