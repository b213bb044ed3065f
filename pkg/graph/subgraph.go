package graph

import (
	"fmt"
	"sort"
	"time"
)

// Subgraph is the node/edge subset of exactly one snapshot selected for a
// query. It is ephemeral: built per query, scored, logged to the audit
// trail, and discarded.
//
// Node order is the order extraction discovered them in (seeds first, then
// breadth-first), and it is preserved here because the triple export and
// the test suite depend on it being stable.
type Subgraph struct {
	GraphID GraphID `json:"graph_id"`
	Seq     int64   `json:"version"`
	Query   string  `json:"query"`

	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`

	// Warnings carries non-blocking extraction concerns, e.g. traversal
	// truncated at the node budget.
	Warnings []string `json:"warnings,omitempty"`

	index map[NodeID]*Node
}

// NewSubgraph builds a subgraph preserving the given node order.
func NewSubgraph(graphID GraphID, seq int64, query string, nodes []*Node, edges []*Edge) *Subgraph {
	sg := &Subgraph{
		GraphID: graphID,
		Seq:     seq,
		Query:   query,
		Nodes:   nodes,
		Edges:   edges,
	}
	sg.reindex()
	return sg
}

func (sg *Subgraph) reindex() {
	sg.index = make(map[NodeID]*Node, len(sg.Nodes))
	for _, n := range sg.Nodes {
		sg.index[n.ID] = n
	}
}

// Empty reports whether the subgraph contains no nodes.
func (sg *Subgraph) Empty() bool { return len(sg.Nodes) == 0 }

// NodeCount returns the number of nodes.
func (sg *Subgraph) NodeCount() int { return len(sg.Nodes) }

// EdgeCount returns the number of edges.
func (sg *Subgraph) EdgeCount() int { return len(sg.Edges) }

// Contains reports whether the node is part of the subgraph.
func (sg *Subgraph) Contains(id NodeID) bool {
	if sg.index == nil {
		sg.reindex()
	}
	_, ok := sg.index[id]
	return ok
}

// Node returns the subgraph node with the given id.
func (sg *Subgraph) Node(id NodeID) (*Node, bool) {
	if sg.index == nil {
		sg.reindex()
	}
	n, ok := sg.index[id]
	return n, ok
}

// AddWarning appends a non-blocking warning.
func (sg *Subgraph) AddWarning(w string) {
	sg.Warnings = append(sg.Warnings, w)
}

// Triple is one (subject, predicate, object) statement of the flat export
// handed to the LLM integration for prompt formatting.
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// Triples flattens the subgraph into (entity, property, value) and
// (entity, relationship, entity) statements.
//
// The order is stable across runs: nodes in discovery (breadth-first)
// order, each node's type first, then its metadata, then its remaining
// properties in sorted key order; relationship triples follow in edge
// discovery order. Callers must not export a subgraph whose validation
// failed; that policy is enforced one level up, in the orchestrator and
// the API layer.
func (sg *Subgraph) Triples() []Triple {
	triples := make([]Triple, 0, len(sg.Nodes)*3+len(sg.Edges))

	for _, n := range sg.Nodes {
		subj := string(n.ID)
		if n.Type != "" {
			triples = append(triples, Triple{subj, "type", n.Type})
		}
		if n.Source != "" {
			triples = append(triples, Triple{subj, "source", n.Source})
		}
		if !n.Timestamp.IsZero() {
			triples = append(triples, Triple{subj, "timestamp", n.Timestamp.UTC().Format(time.RFC3339)})
		}

		keys := make([]string, 0, len(n.Properties))
		for k := range n.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			triples = append(triples, Triple{subj, k, fmt.Sprintf("%v", n.Properties[k])})
		}
	}

	for _, e := range sg.Edges {
		triples = append(triples, Triple{string(e.Source), e.Label, string(e.Target)})
	}

	return triples
}
