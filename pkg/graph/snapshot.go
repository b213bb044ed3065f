package graph

import (
	"fmt"
	"sort"
)

// Snapshot is an immutable, versioned collection of nodes and edges
// identified by (graph id, sequence number).
//
// Snapshots are the only thing queries ever read. They are built once by
// the store during publication and then shared by every concurrent reader,
// which is safe because nothing mutates them afterwards. Accessors that
// return slices return them in a fixed, sorted order so that traversal and
// scoring are reproducible for identical inputs.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Callers must not modify the
//	nodes or edges a snapshot hands out.
type Snapshot struct {
	graphID GraphID
	seq     int64

	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge

	nodeOrder []NodeID // sorted
	edgeOrder []EdgeID // sorted

	// Undirected adjacency, each list sorted by (label, other endpoint, id).
	adjacency map[NodeID][]*Edge
}

// NewSnapshot assembles an immutable snapshot from nodes and edges.
//
// Every node and edge must carry a non-empty ID, IDs must be unique, and
// both endpoints of every edge must be present among the nodes. Violations
// return ErrEmptyID, ErrDuplicateNode/ErrDuplicateEdge or ErrDanglingEdge
// wrapped with the offending identifier.
func NewSnapshot(graphID GraphID, seq int64, nodes []*Node, edges []*Edge) (*Snapshot, error) {
	s := &Snapshot{
		graphID:   graphID,
		seq:       seq,
		nodes:     make(map[NodeID]*Node, len(nodes)),
		edges:     make(map[EdgeID]*Edge, len(edges)),
		adjacency: make(map[NodeID][]*Edge),
	}

	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node: %w", ErrEmptyID)
		}
		if _, exists := s.nodes[n.ID]; exists {
			return nil, fmt.Errorf("node %q: %w", n.ID, ErrDuplicateNode)
		}
		s.nodes[n.ID] = n
		s.nodeOrder = append(s.nodeOrder, n.ID)
	}

	for _, e := range edges {
		if e.ID == "" {
			return nil, fmt.Errorf("edge: %w", ErrEmptyID)
		}
		if _, exists := s.edges[e.ID]; exists {
			return nil, fmt.Errorf("edge %q: %w", e.ID, ErrDuplicateEdge)
		}
		if _, ok := s.nodes[e.Source]; !ok {
			return nil, fmt.Errorf("edge %q source %q: %w", e.ID, e.Source, ErrDanglingEdge)
		}
		if _, ok := s.nodes[e.Target]; !ok {
			return nil, fmt.Errorf("edge %q target %q: %w", e.ID, e.Target, ErrDanglingEdge)
		}
		s.edges[e.ID] = e
		s.edgeOrder = append(s.edgeOrder, e.ID)

		s.adjacency[e.Source] = append(s.adjacency[e.Source], e)
		if e.Target != e.Source {
			s.adjacency[e.Target] = append(s.adjacency[e.Target], e)
		}
	}

	sort.Slice(s.nodeOrder, func(i, j int) bool { return s.nodeOrder[i] < s.nodeOrder[j] })
	sort.Slice(s.edgeOrder, func(i, j int) bool { return s.edgeOrder[i] < s.edgeOrder[j] })

	for id, adj := range s.adjacency {
		nid := id
		sort.Slice(adj, func(i, j int) bool {
			a, b := adj[i], adj[j]
			if a.Label != b.Label {
				return a.Label < b.Label
			}
			if ao, bo := a.Other(nid), b.Other(nid); ao != bo {
				return ao < bo
			}
			return a.ID < b.ID
		})
	}

	return s, nil
}

// GraphID returns the logical graph this snapshot belongs to.
func (s *Snapshot) GraphID() GraphID { return s.graphID }

// Seq returns the version sequence number of this snapshot.
func (s *Snapshot) Seq() int64 { return s.seq }

// NodeCount returns the number of nodes in the snapshot.
func (s *Snapshot) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of edges in the snapshot.
func (s *Snapshot) EdgeCount() int { return len(s.edges) }

// Node returns the node with the given id.
func (s *Snapshot) Node(id NodeID) (*Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Edge returns the edge with the given id.
func (s *Snapshot) Edge(id EdgeID) (*Edge, bool) {
	e, ok := s.edges[id]
	return e, ok
}

// Nodes returns all nodes in ascending ID order.
func (s *Snapshot) Nodes() []*Node {
	out := make([]*Node, len(s.nodeOrder))
	for i, id := range s.nodeOrder {
		out[i] = s.nodes[id]
	}
	return out
}

// Edges returns all edges in ascending ID order.
func (s *Snapshot) Edges() []*Edge {
	out := make([]*Edge, len(s.edgeOrder))
	for i, id := range s.edgeOrder {
		out[i] = s.edges[id]
	}
	return out
}

// EdgesOf returns every edge touching the node, direction ignored, sorted
// by (label, other endpoint, edge id). This is the order the extractor's
// breadth-first traversal visits edges in, which keeps extraction
// deterministic.
func (s *Snapshot) EdgesOf(id NodeID) []*Edge {
	return s.adjacency[id]
}

// NodeIDs returns all node IDs in ascending order.
func (s *Snapshot) NodeIDs() []NodeID {
	out := make([]NodeID, len(s.nodeOrder))
	copy(out, s.nodeOrder)
	return out
}

// EdgeIDs returns all edge IDs in ascending order.
func (s *Snapshot) EdgeIDs() []EdgeID {
	out := make([]EdgeID, len(s.edgeOrder))
	copy(out, s.edgeOrder)
	return out
}
