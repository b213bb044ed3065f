// Package validate scores extracted subgraphs for groundedness.
//
// Scoring is pure: a report is computed from the subgraph alone, and the
// same subgraph always produces the same report. The score blends three
// signals, metadata completeness, connectivity, and verification, into a
// single number in [0, 1] compared against a pass threshold.
package validate

import (
	"errors"
	"fmt"

	"github.com/rivadaviam/AI.me/pkg/graph"
)

// ErrValidationFailed wraps reports that did not pass. Callers that need
// a hard failure out of an invalid report use Report.Err.
var ErrValidationFailed = errors.New("validation failed")

// Issues a report may carry. Issues block validity regardless of score.
const (
	IssueNoMatchingNodes = "no matching nodes"
	IssueBrokenEdge      = "broken edge reference"
)

// WarnLowVerification flags a passing subgraph where fewer than half the
// nodes are verified.
const WarnLowVerification = "low verification coverage"

// Weights blends the three component scores. They should sum to 1.
type Weights struct {
	Metadata     float64 `json:"metadata" yaml:"metadata"`
	Connectivity float64 `json:"connectivity" yaml:"connectivity"`
	Verification float64 `json:"verification" yaml:"verification"`
}

// Config tunes the validator.
type Config struct {
	// Threshold is the minimum blended score for a subgraph to pass.
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Weights   Weights `json:"weights" yaml:"weights"`
}

// DefaultConfig returns the standard scoring configuration.
func DefaultConfig() Config {
	return Config{
		Threshold: 0.7,
		Weights: Weights{
			Metadata:     0.4,
			Connectivity: 0.3,
			Verification: 0.3,
		},
	}
}

// Report is the outcome of validating one subgraph.
type Report struct {
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Valid     bool    `json:"valid"`

	Metadata     float64 `json:"metadata_score"`
	Connectivity float64 `json:"connectivity_score"`
	Verification float64 `json:"verification_score"`

	// Issues block validity; Warnings do not.
	Issues   []string `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Err returns nil for a valid report and an ErrValidationFailed otherwise.
func (r *Report) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("score %.2f below %.2f (issues: %d): %w",
		r.Score, r.Threshold, len(r.Issues), ErrValidationFailed)
}

// Validator scores subgraphs under a fixed configuration.
type Validator struct {
	cfg Config
}

// New creates a validator. Zero config fields fall back to defaults.
func New(cfg Config) *Validator {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	return &Validator{cfg: cfg}
}

// Validate scores the subgraph and decides whether it passes.
//
// An empty subgraph scores 0 with the "no matching nodes" issue. Edge
// references outside the node set raise "broken edge reference". The
// subgraph's own extraction warnings are carried into the report.
func (v *Validator) Validate(sg *graph.Subgraph) *Report {
	return v.ValidateWithThreshold(sg, v.cfg.Threshold)
}

// ValidateWithThreshold scores against a caller-supplied threshold,
// keeping the configured weights. Non-positive thresholds fall back to
// the configured one.
func (v *Validator) ValidateWithThreshold(sg *graph.Subgraph, threshold float64) *Report {
	if threshold <= 0 {
		threshold = v.cfg.Threshold
	}
	r := &Report{Threshold: threshold}
	r.Warnings = append(r.Warnings, sg.Warnings...)

	if sg.Empty() {
		r.Issues = append(r.Issues, IssueNoMatchingNodes)
		return r
	}

	for _, e := range sg.Edges {
		if !sg.Contains(e.Source) || !sg.Contains(e.Target) {
			r.Issues = append(r.Issues, IssueBrokenEdge)
			break
		}
	}

	r.Metadata = metadataScore(sg.Nodes)
	r.Connectivity = connectivityScore(sg)
	r.Verification = verificationScore(sg.Nodes)

	w := v.cfg.Weights
	r.Score = w.Metadata*r.Metadata +
		w.Connectivity*r.Connectivity +
		w.Verification*r.Verification

	r.Valid = len(r.Issues) == 0 && r.Score >= r.Threshold

	// A failing report already says everything; the warning is for
	// passes carried by the other two signals.
	if r.Valid && r.Verification < 0.5 {
		r.Warnings = append(r.Warnings, WarnLowVerification)
	}
	return r
}

// metadataScore averages per-node provenance completeness; each node
// contributes half for a source and half for a timestamp.
func metadataScore(nodes []*graph.Node) float64 {
	var total float64
	for _, n := range nodes {
		if n.HasSource() {
			total += 0.5
		}
		if n.HasTimestamp() {
			total += 0.5
		}
	}
	return total / float64(len(nodes))
}

// connectivityScore is the share of nodes in the largest weakly-connected
// component. A single node scores 1.
func connectivityScore(sg *graph.Subgraph) float64 {
	n := len(sg.Nodes)
	if n == 1 {
		return 1
	}

	adj := make(map[graph.NodeID][]graph.NodeID, n)
	for _, e := range sg.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
		adj[e.Target] = append(adj[e.Target], e.Source)
	}

	visited := make(map[graph.NodeID]bool, n)
	largest := 0
	for _, start := range sg.Nodes {
		if visited[start.ID] {
			continue
		}
		size := 0
		stack := []graph.NodeID{start.ID}
		visited[start.ID] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			size++
			for _, next := range adj[cur] {
				if !visited[next] && sg.Contains(next) {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
		if size > largest {
			largest = size
		}
	}

	return float64(largest) / float64(n)
}

// verificationScore is the fraction of verified nodes.
func verificationScore(nodes []*graph.Node) float64 {
	verified := 0
	for _, n := range nodes {
		if n.Verified {
			verified++
		}
	}
	return float64(verified) / float64(len(nodes))
}
