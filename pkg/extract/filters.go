package extract

import (
	"errors"
	"fmt"
	"time"

	"github.com/rivadaviam/AI.me/pkg/graph"
)

// ErrInvalidFilter is returned when a filter map names an unknown key or
// carries a value of the wrong shape.
var ErrInvalidFilter = errors.New("invalid filter")

// Filter keys accepted by ParseFilters.
const (
	FilterSources    = "sources"
	FilterNodeTypes  = "node_types"
	FilterValidUntil = "valid_until"
)

// Filters narrows an extracted subgraph after traversal.
//
// A node survives when its source and type are among the allowed ones
// (empty list allows everything) and its valid_until property, if any,
// is strictly after the cutoff. Edges losing an endpoint are dropped
// with the node.
type Filters struct {
	Sources    []string  `json:"sources,omitempty"`
	NodeTypes  []string  `json:"node_types,omitempty"`
	ValidUntil time.Time `json:"valid_until,omitzero"`
}

// ParseFilters builds Filters from a raw request map. Unknown keys and
// malformed values return ErrInvalidFilter.
func ParseFilters(raw map[string]any) (*Filters, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	f := &Filters{}
	for key, val := range raw {
		switch key {
		case FilterSources:
			list, err := stringList(key, val)
			if err != nil {
				return nil, err
			}
			f.Sources = list
		case FilterNodeTypes:
			list, err := stringList(key, val)
			if err != nil {
				return nil, err
			}
			f.NodeTypes = list
		case FilterValidUntil:
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("%s: want RFC 3339 string: %w", key, ErrInvalidFilter)
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, fmt.Errorf("%s: %v: %w", key, err, ErrInvalidFilter)
			}
			f.ValidUntil = t
		default:
			return nil, fmt.Errorf("unknown filter %q: %w", key, ErrInvalidFilter)
		}
	}
	return f, nil
}

func stringList(key string, val any) ([]string, error) {
	switch v := val.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: want list of strings: %w", key, ErrInvalidFilter)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: want list of strings: %w", key, ErrInvalidFilter)
	}
}

// apply returns the nodes passing every filter, order preserved.
func (f *Filters) apply(nodes []*graph.Node) []*graph.Node {
	var out []*graph.Node
	for _, n := range nodes {
		if f.allows(n) {
			out = append(out, n)
		}
	}
	return out
}

func (f *Filters) allows(n *graph.Node) bool {
	if len(f.Sources) > 0 && !contains(f.Sources, n.Source) {
		return false
	}
	if len(f.NodeTypes) > 0 && !contains(f.NodeTypes, n.Type) {
		return false
	}
	if !f.ValidUntil.IsZero() {
		// Validity lapsing exactly at the bound counts as expired.
		if until, ok := nodeValidUntil(n); ok && !until.After(f.ValidUntil) {
			return false
		}
	}
	return true
}

// nodeValidUntil reads the node's valid_until property, accepting either
// a time.Time or an RFC 3339 string.
func nodeValidUntil(n *graph.Node) (time.Time, bool) {
	raw, ok := n.Properties[graph.PropValidUntil]
	if !ok {
		return time.Time{}, false
	}
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
