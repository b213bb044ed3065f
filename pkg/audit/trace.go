package audit

import (
	"sort"
	"time"
)

// Query filters the event trail. Zero-valued fields match everything.
type Query struct {
	Kinds         []Kind    `json:"kinds,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	GraphID       string    `json:"graph_id,omitempty"`
	Since         time.Time `json:"since,omitzero"`
	Until         time.Time `json:"until,omitzero"`

	// Limit caps the number of events returned. Zero means no cap.
	Limit int `json:"limit,omitempty"`
}

func (q *Query) matches(e *Event) bool {
	if len(q.Kinds) > 0 && !containsKind(q.Kinds, e.Kind) {
		return false
	}
	if q.SessionID != "" && e.SessionID != q.SessionID {
		return false
	}
	if q.CorrelationID != "" && e.CorrelationID != q.CorrelationID {
		return false
	}
	if q.UserID != "" && e.UserID != q.UserID {
		return false
	}
	if q.GraphID != "" && e.GraphID != q.GraphID {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
		return false
	}
	return true
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Events returns the recorded events matching the query, in emission
// order.
func (em *Emitter) Events(q Query) []*Event {
	em.mu.Lock()
	defer em.mu.Unlock()

	var out []*Event
	for _, e := range em.events {
		if q.matches(e) {
			out = append(out, e)
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
		}
	}
	return out
}

// Trace returns a session's events ordered by timestamp, sequence number
// breaking ties, with duplicate event IDs dropped.
func (em *Emitter) Trace(sessionID string) []*Event {
	events := em.Events(Query{SessionID: sessionID})

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Seq < b.Seq
	})

	seen := make(map[string]bool, len(events))
	out := events[:0]
	for _, e := range events {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out
}

// Reader queries an audit log file without an emitter, e.g. from the CLI
// against a log another process wrote.
type Reader struct {
	path string
}

// NewReader creates a reader over the JSONL file at path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Query loads the file and returns the matching events in file order.
func (r *Reader) Query(q Query) ([]*Event, error) {
	events, err := loadEvents(r.path)
	if err != nil {
		return nil, err
	}

	var out []*Event
	for _, e := range events {
		if q.matches(e) {
			out = append(out, e)
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
		}
	}
	return out, nil
}
