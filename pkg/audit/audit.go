// Package audit records the immutable event trail behind every reasoning
// decision.
//
// Each pipeline stage emits exactly one event, so a session's trace reads
// as the full story of a decision: which snapshot was resolved, what was
// extracted, how it scored, and what was decided. Events are append-only,
// kept in memory for querying, and optionally mirrored to a JSONL file
// that survives restarts.
//
// Example Usage:
//
//	emitter, err := audit.NewEmitter(audit.Config{
//		Enabled: true,
//		LogPath: "./data/audit.log",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer emitter.Close()
//
//	emitter.Emit(audit.Event{
//		Kind:      audit.KindSnapshotResolved,
//		SessionID: "session-1",
//		GraphID:   "kb",
//		Details:   map[string]any{"seq": 3},
//	})
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrWriteFailed indicates an event could not be appended to the trail.
var ErrWriteFailed = errors.New("audit write failed")

// ErrClosed indicates the emitter has been closed.
var ErrClosed = errors.New("audit emitter closed")

// Kind classifies an audit event.
type Kind string

// Event kinds emitted by the reasoning pipeline and the store.
const (
	KindGraphPublished    Kind = "GRAPH_PUBLISHED"
	KindSnapshotResolved  Kind = "SNAPSHOT_RESOLVED"
	KindSubgraphExtracted Kind = "SUBGRAPH_EXTRACTED"
	KindSubgraphValidated Kind = "SUBGRAPH_VALIDATED"
	KindDecisionMade      Kind = "DECISION_MADE"
	KindError             Kind = "ERROR"
)

// Event is one immutable entry of the audit trail.
type Event struct {
	// ID is a UUID assigned at emission.
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`

	// Seq is a process-local monotonic counter breaking timestamp ties.
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`

	SessionID     string `json:"session_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	GraphID       string `json:"graph_id,omitempty"`

	Details map[string]any `json:"details,omitempty"`
}

// Config holds emitter configuration.
type Config struct {
	// Enabled controls whether events are recorded at all.
	Enabled bool `yaml:"enabled"`

	// LogPath is the JSONL file events are mirrored to. Empty keeps the
	// trail in memory only.
	LogPath string `yaml:"log_path"`

	// SyncWrites forces fsync after each event. Slower but durable.
	SyncWrites bool `yaml:"sync_writes"`
}

// DefaultConfig returns sensible defaults for audit recording.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		SyncWrites: false,
	}
}

// Emitter appends events to the trail.
//
// Thread Safety:
//
//	Safe for concurrent use. Emission holds a single mutex, so sequence
//	numbers and file order always agree.
type Emitter struct {
	mu       sync.Mutex
	config   Config
	writer   io.Writer
	file     *os.File
	sequence uint64
	closed   bool

	events []*Event
}

// NewEmitter creates an emitter. When LogPath is set the file is opened
// in append mode and any events already in it are loaded, so traces span
// restarts. Set Enabled to false for a no-op emitter.
func NewEmitter(config Config) (*Emitter, error) {
	em := &Emitter{config: config}
	if !config.Enabled || config.LogPath == "" {
		return em, nil
	}

	if err := os.MkdirAll(filepath.Dir(config.LogPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}

	existing, err := loadEvents(config.LogPath)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(config.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	em.file = f
	em.writer = f
	em.events = existing
	for _, e := range existing {
		if e.Seq > em.sequence {
			em.sequence = e.Seq
		}
	}
	return em, nil
}

// NewEmitterWithWriter creates an emitter mirroring events to w. For
// tests and custom destinations.
func NewEmitterWithWriter(w io.Writer, config Config) *Emitter {
	return &Emitter{config: config, writer: w}
}

func loadEvents(path string) ([]*Event, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	defer f.Close()

	var events []*Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			// A torn final line from a crash is skipped, not fatal.
			continue
		}
		events = append(events, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning audit log: %w", err)
	}
	return events, nil
}

// Emit appends the event to the trail, assigning ID, sequence number, and
// timestamp. The recorded event is returned. Failures to persist return
// ErrWriteFailed; the event is not kept in memory either, so the trail
// never diverges from the file.
func (em *Emitter) Emit(event Event) (*Event, error) {
	if !em.config.Enabled {
		return &event, nil
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	if em.closed {
		return nil, ErrClosed
	}

	em.sequence++
	event.Seq = em.sequence
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if em.writer != nil {
		data, err := json.Marshal(&event)
		if err != nil {
			return nil, fmt.Errorf("marshaling audit event: %w", err)
		}
		if _, err := em.writer.Write(append(data, '\n')); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		if em.config.SyncWrites && em.file != nil {
			if err := em.file.Sync(); err != nil {
				return nil, fmt.Errorf("%w: sync: %v", ErrWriteFailed, err)
			}
		}
	}

	em.events = append(em.events, &event)
	return &event, nil
}

// Len returns the number of recorded events.
func (em *Emitter) Len() int {
	em.mu.Lock()
	defer em.mu.Unlock()
	return len(em.events)
}

// Close flushes and closes the underlying file. Idempotent.
func (em *Emitter) Close() error {
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.closed {
		return nil
	}
	em.closed = true
	if em.file != nil {
		if err := em.file.Sync(); err != nil {
			em.file.Close()
			return err
		}
		return em.file.Close()
	}
	return nil
}
