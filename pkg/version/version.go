// Package version tracks the published versions of each graph and resolves
// queries to the snapshot they should read.
//
// Versions form an append-only sequence per graph: seq 1, 2, 3, ... with no
// gaps and no rewrites. A version may carry an expiry for temporal
// knowledge; resolving an expired version explicitly is an error, while
// latest-resolution skips expired versions silently.
package version

import (
	"errors"
	"fmt"
	"time"

	"github.com/rivadaviam/AI.me/pkg/graph"
)

var (
	// ErrNotFound is returned when a graph or version does not exist.
	ErrNotFound = errors.New("version not found")
	// ErrExpired is returned when an explicitly requested version has
	// passed its expiry.
	ErrExpired = errors.New("version expired")
	// ErrInvalidKind is returned when a publication names an unknown
	// version kind.
	ErrInvalidKind = errors.New("invalid version kind")
)

// Kind classifies how a new version relates to its predecessor.
type Kind string

const (
	// KindMajor marks a structural rebuild of the graph.
	KindMajor Kind = "major"
	// KindMinor marks additive changes.
	KindMinor Kind = "minor"
	// KindPatch marks corrections to existing nodes or edges.
	KindPatch Kind = "patch"
	// KindTemporal marks time-scoped knowledge that expires.
	KindTemporal Kind = "temporal"
)

// ParseKind validates a version kind string.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindMajor, KindMinor, KindPatch, KindTemporal:
		return k, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrInvalidKind)
	}
}

// Version is the metadata record of one published snapshot.
type Version struct {
	GraphID   graph.GraphID `json:"graph_id"`
	Seq       int64         `json:"seq"`
	Kind      Kind          `json:"kind"`
	Summary   string        `json:"summary,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at,omitzero"`

	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`
}

// Expired reports whether the version has an expiry in the past relative
// to at. Versions without an expiry never expire.
func (v *Version) Expired(at time.Time) bool {
	return !v.ExpiresAt.IsZero() && !at.Before(v.ExpiresAt)
}

// String renders the version as graph@seq.
func (v *Version) String() string {
	return fmt.Sprintf("%s@%d", v.GraphID, v.Seq)
}
