// Package extract selects query-relevant subgraphs out of immutable
// snapshots.
//
// Extraction is deterministic: the same snapshot, query, filters, and
// limits always produce the same subgraph with nodes in the same order.
// Seeds are matched by lowercased term, ordered by confidence descending
// and ID ascending, then expanded breadth-first along the snapshot's
// sorted adjacency lists up to the hop limit, stopping at the node budget.
package extract

import (
	"context"
	"sort"
	"strings"

	"github.com/rivadaviam/AI.me/pkg/graph"
)

// WarnBudgetExceeded is attached to a subgraph whose traversal stopped at
// the node budget before exhausting reachable nodes.
const WarnBudgetExceeded = "traversal truncated: node budget exceeded"

// Options bounds a traversal.
type Options struct {
	// MaxNodes caps the number of nodes a subgraph may contain.
	MaxNodes int
	// MaxHops caps the breadth-first distance from any seed. Zero means
	// the default; use SeedsOnly to suppress expansion entirely.
	MaxHops int
	// SeedsOnly skips traversal, keeping only the matched seed nodes.
	SeedsOnly bool
}

// DefaultOptions returns the standard traversal bounds.
func DefaultOptions() Options {
	return Options{
		MaxNodes: 500,
		MaxHops:  2,
	}
}

// Extractor runs subgraph extraction with fixed bounds.
type Extractor struct {
	opts Options
}

// New creates an extractor. Non-positive MaxNodes and MaxHops fall back
// to the defaults; SeedsOnly forces a hop limit of zero.
func New(opts Options) *Extractor {
	def := DefaultOptions()
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = def.MaxNodes
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = def.MaxHops
	}
	if opts.SeedsOnly {
		opts.MaxHops = 0
	}
	return &Extractor{opts: opts}
}

// Extract selects the subgraph of snap relevant to query, applying
// filters after the traversal. A query matching nothing yields an empty
// subgraph, not an error.
func (x *Extractor) Extract(ctx context.Context, snap *graph.Snapshot, query string, filters *Filters) (*graph.Subgraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seeds := matchSeeds(snap, Terms(query))
	nodes, truncated := x.traverse(snap, seeds)

	if filters != nil {
		nodes = filters.apply(nodes)
	}
	edges := collectEdges(snap, nodes)

	sg := graph.NewSubgraph(snap.GraphID(), snap.Seq(), query, nodes, edges)
	if truncated {
		sg.AddWarning(WarnBudgetExceeded)
	}
	return sg, nil
}

// Terms splits a query into lowercased whitespace-separated terms.
func Terms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// matchSeeds returns the nodes matching any term, ordered by confidence
// descending then ID ascending. Snapshot.Nodes is already ID-sorted, so a
// stable sort on confidence alone preserves the tie-break.
func matchSeeds(snap *graph.Snapshot, terms []string) []*graph.Node {
	if len(terms) == 0 {
		return nil
	}

	var seeds []*graph.Node
	for _, n := range snap.Nodes() {
		if nodeMatches(n, terms) {
			seeds = append(seeds, n)
		}
	}
	sort.SliceStable(seeds, func(i, j int) bool {
		return seeds[i].Confidence > seeds[j].Confidence
	})
	return seeds
}

// nodeMatches reports whether any term occurs in the node's name, type,
// or string property values, case-insensitively. IDs are opaque and do
// not participate in matching.
func nodeMatches(n *graph.Node, terms []string) bool {
	haystacks := []string{
		strings.ToLower(n.Name()),
		strings.ToLower(n.Type),
	}
	for k, v := range n.Properties {
		if k == graph.PropName {
			continue
		}
		if s, ok := v.(string); ok {
			haystacks = append(haystacks, strings.ToLower(s))
		}
	}

	for _, term := range terms {
		for _, h := range haystacks {
			if strings.Contains(h, term) {
				return true
			}
		}
	}
	return false
}

// traverse expands seeds breadth-first. Nodes come back in discovery
// order; truncated reports whether the node budget cut the walk short.
func (x *Extractor) traverse(snap *graph.Snapshot, seeds []*graph.Node) ([]*graph.Node, bool) {
	type item struct {
		node *graph.Node
		hop  int
	}

	seen := make(map[graph.NodeID]bool, len(seeds))
	var order []*graph.Node
	var queue []item

	for _, s := range seeds {
		if len(order) >= x.opts.MaxNodes {
			return order, true
		}
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		order = append(order, s)
		queue = append(queue, item{node: s, hop: 0})
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.hop >= x.opts.MaxHops {
			continue
		}

		for _, e := range snap.EdgesOf(cur.node.ID) {
			next := e.Other(cur.node.ID)
			if seen[next] {
				continue
			}
			if len(order) >= x.opts.MaxNodes {
				return order, true
			}
			n, ok := snap.Node(next)
			if !ok {
				continue
			}
			seen[next] = true
			order = append(order, n)
			queue = append(queue, item{node: n, hop: cur.hop + 1})
		}
	}

	return order, false
}

// collectEdges keeps every snapshot edge with both endpoints in the node
// set, in node-discovery then adjacency order.
func collectEdges(snap *graph.Snapshot, nodes []*graph.Node) []*graph.Edge {
	inSet := make(map[graph.NodeID]bool, len(nodes))
	for _, n := range nodes {
		inSet[n.ID] = true
	}

	var edges []*graph.Edge
	added := make(map[graph.EdgeID]bool)
	for _, n := range nodes {
		for _, e := range snap.EdgesOf(n.ID) {
			if added[e.ID] {
				continue
			}
			if inSet[e.Source] && inSet[e.Target] {
				added[e.ID] = true
				edges = append(edges, e)
			}
		}
	}
	return edges
}
