// Package reason runs the reasoning pipeline over versioned graphs.
//
// One Execute call walks a fixed state machine: Resolving picks the
// snapshot, Extracting selects the relevant subgraph, Validating scores
// it, and the run ends Decided or Errored. Every transition emits exactly
// one audit event tied to the run's correlation ID, so a session trace
// replays the whole pipeline. Cancellation is honored at each state
// boundary, never mid-stage.
package reason

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rivadaviam/AI.me/pkg/audit"
	"github.com/rivadaviam/AI.me/pkg/extract"
	"github.com/rivadaviam/AI.me/pkg/graph"
	"github.com/rivadaviam/AI.me/pkg/validate"
	"github.com/rivadaviam/AI.me/pkg/version"
)

// State names a stage of the reasoning pipeline.
type State string

// Pipeline states. Decided and Errored are terminal.
const (
	StateResolving  State = "resolving"
	StateExtracting State = "extracting"
	StateValidating State = "validating"
	StateDecided    State = "decided"
	StateErrored    State = "errored"
)

// auditAttempts is how many times an audit write is retried before the
// run is aborted.
const auditAttempts = 3

// Request describes one reasoning run.
type Request struct {
	GraphID graph.GraphID `json:"graph_id"`

	// Seq pins an exact version. Zero resolves the latest non-expired
	// version, or the version current at AsOf when that is set.
	Seq  int64     `json:"seq,omitempty"`
	AsOf time.Time `json:"as_of,omitzero"`

	Query   string         `json:"query"`
	Filters map[string]any `json:"filters,omitempty"`

	// Threshold overrides the configured groundedness threshold for this
	// run. Zero keeps the configured one.
	Threshold float64 `json:"threshold,omitempty"`

	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// Decision is the terminal output of a successful run.
//
// Triples is populated only when the subgraph passed validation; an
// ungrounded decision never exports knowledge.
type Decision struct {
	CorrelationID string        `json:"correlation_id"`
	SessionID     string        `json:"session_id,omitempty"`
	GraphID       graph.GraphID `json:"graph_id"`
	Seq           int64         `json:"seq"`
	Query         string        `json:"query"`

	Grounded bool             `json:"grounded"`
	Report   *validate.Report `json:"report"`
	Subgraph *graph.Subgraph  `json:"subgraph"`
	Triples  []graph.Triple   `json:"triples,omitempty"`

	DecidedAt time.Time `json:"decided_at"`
}

// Orchestrator wires resolver, extractor, validator, and audit emitter
// into the pipeline.
type Orchestrator struct {
	resolver  *version.Resolver
	extractor *extract.Extractor
	validator *validate.Validator
	emitter   *audit.Emitter
}

// New creates an orchestrator over the given components.
func New(resolver *version.Resolver, extractor *extract.Extractor, validator *validate.Validator, emitter *audit.Emitter) *Orchestrator {
	return &Orchestrator{
		resolver:  resolver,
		extractor: extractor,
		validator: validator,
		emitter:   emitter,
	}
}

// Execute runs the pipeline for req.
//
// A subgraph failing validation is still a decision: the run ends Decided
// with Grounded false and a nil error. Execute errors only when a stage
// itself fails (resolution, filters, audit persistence, cancellation).
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Decision, error) {
	run := &run{
		orch:          o,
		correlationID: uuid.NewString(),
		req:           req,
	}

	// Resolving.
	if err := ctx.Err(); err != nil {
		return nil, run.fail(StateResolving, err)
	}
	v, snap, err := run.resolve(ctx)
	if err != nil {
		return nil, run.fail(StateResolving, err)
	}
	if err := run.emit(audit.KindSnapshotResolved, map[string]any{
		"seq":        v.Seq,
		"kind":       string(v.Kind),
		"node_count": snap.NodeCount(),
		"edge_count": snap.EdgeCount(),
	}); err != nil {
		return nil, err
	}

	// Extracting.
	if err := ctx.Err(); err != nil {
		return nil, run.fail(StateExtracting, err)
	}
	filters, err := extract.ParseFilters(req.Filters)
	if err != nil {
		return nil, run.fail(StateExtracting, err)
	}
	sg, err := o.extractor.Extract(ctx, snap, req.Query, filters)
	if err != nil {
		return nil, run.fail(StateExtracting, err)
	}
	if err := run.emit(audit.KindSubgraphExtracted, map[string]any{
		"node_count": sg.NodeCount(),
		"edge_count": sg.EdgeCount(),
		"warnings":   sg.Warnings,
	}); err != nil {
		return nil, err
	}

	// Validating.
	if err := ctx.Err(); err != nil {
		return nil, run.fail(StateValidating, err)
	}
	report := o.validator.ValidateWithThreshold(sg, req.Threshold)
	if err := run.emit(audit.KindSubgraphValidated, map[string]any{
		"score":  report.Score,
		"valid":  report.Valid,
		"issues": report.Issues,
	}); err != nil {
		return nil, err
	}

	// Decided.
	decision := &Decision{
		CorrelationID: run.correlationID,
		SessionID:     req.SessionID,
		GraphID:       snap.GraphID(),
		Seq:           snap.Seq(),
		Query:         req.Query,
		Grounded:      report.Valid,
		Report:        report,
		Subgraph:      sg,
		DecidedAt:     time.Now().UTC(),
	}
	if report.Valid {
		decision.Triples = sg.Triples()
	}
	if err := run.emit(audit.KindDecisionMade, map[string]any{
		"grounded": decision.Grounded,
		"score":    report.Score,
		"triples":  len(decision.Triples),
	}); err != nil {
		return nil, err
	}

	return decision, nil
}

// run carries per-execution state shared by the pipeline helpers.
type run struct {
	orch          *Orchestrator
	correlationID string
	req           Request
}

func (r *run) resolve(ctx context.Context) (*version.Version, *graph.Snapshot, error) {
	if r.req.Seq <= 0 && !r.req.AsOf.IsZero() {
		return r.orch.resolver.ResolveAt(ctx, r.req.GraphID, r.req.AsOf)
	}
	return r.orch.resolver.Resolve(ctx, r.req.GraphID, r.req.Seq)
}

// emit writes one pipeline event, retrying transient audit failures.
// Exhausting the retries aborts the run.
func (r *run) emit(kind audit.Kind, details map[string]any) error {
	event := audit.Event{
		Kind:          kind,
		SessionID:     r.req.SessionID,
		UserID:        r.req.UserID,
		CorrelationID: r.correlationID,
		GraphID:       string(r.req.GraphID),
		Details:       details,
	}

	var err error
	for attempt := 0; attempt < auditAttempts; attempt++ {
		if _, err = r.orch.emitter.Emit(event); err == nil {
			return nil
		}
		if !errors.Is(err, audit.ErrWriteFailed) {
			break
		}
	}
	return fmt.Errorf("reasoning aborted, %s event lost: %w", kind, err)
}

// fail records the ERROR event for a failed stage and returns the stage
// error. An audit trail loss on top of the stage failure is reported
// alongside it.
func (r *run) fail(stage State, cause error) error {
	auditErr := r.emit(audit.KindError, map[string]any{
		"stage": string(stage),
		"error": cause.Error(),
	})
	if auditErr != nil {
		return errors.Join(cause, auditErr)
	}
	return fmt.Errorf("%s: %w", stage, cause)
}
