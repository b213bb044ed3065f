// Package aime is the embedded facade over the versioned reasoning store.
//
// Open wires storage, version resolution, extraction, validation, and the
// audit trail into one handle. Callers publish graph versions and run
// grounded reasoning queries without touching the underlying packages.
//
// Example Usage:
//
//	db, err := aime.Open("./data", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	v, err := db.PublishVersion(ctx, storage.Publication{
//		GraphID: "kb",
//		Kind:    version.KindMajor,
//		Nodes:   nodes,
//		Edges:   edges,
//	})
//
//	decision, err := db.Query(ctx, reason.Request{
//		GraphID: "kb",
//		Query:   "machine learning",
//	})
package aime

import (
	"context"
	"fmt"
	"time"

	"github.com/rivadaviam/AI.me/pkg/audit"
	"github.com/rivadaviam/AI.me/pkg/auth"
	"github.com/rivadaviam/AI.me/pkg/config"
	"github.com/rivadaviam/AI.me/pkg/extract"
	"github.com/rivadaviam/AI.me/pkg/graph"
	"github.com/rivadaviam/AI.me/pkg/reason"
	"github.com/rivadaviam/AI.me/pkg/storage"
	"github.com/rivadaviam/AI.me/pkg/validate"
	"github.com/rivadaviam/AI.me/pkg/version"
)

// gcInterval paces value-log garbage collection on the persistent engine.
const gcInterval = 5 * time.Minute

// DB is an open handle on the reasoning store.
type DB struct {
	cfg *config.Config

	store         storage.Store
	resolver      *version.Resolver
	orchestrator  *reason.Orchestrator
	emitter       *audit.Emitter
	authenticator *auth.Authenticator

	stopGC chan struct{}
}

// Open initializes the store at dataDir. An empty dataDir selects the
// in-memory engine; data will not persist. A nil config uses defaults,
// with dataDir overriding the configured data directory either way.
func Open(dataDir string, cfg *config.Config) (*DB, error) {
	if cfg == nil {
		cfg = config.Default()
		if dataDir == "" {
			// Fully ephemeral: keep the audit trail in memory too.
			cfg.Audit.LogPath = ""
		}
	}
	cfg.Database.DataDir = dataDir

	db := &DB{cfg: cfg}

	if dataDir != "" {
		store, err := storage.NewBadgerStoreWithOptions(storage.BadgerOptions{
			DataDir:    dataDir,
			SyncWrites: cfg.Database.SyncWrites,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open persistent storage: %w", err)
		}
		db.store = store
		db.stopGC = make(chan struct{})
		go db.gcLoop(store)
	} else {
		db.store = storage.NewMemoryStore()
	}

	emitter, err := audit.NewEmitter(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		LogPath:    cfg.Audit.LogPath,
		SyncWrites: cfg.Audit.SyncWrites,
	})
	if err != nil {
		db.store.Close()
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}
	db.emitter = emitter

	db.resolver = version.NewResolver(db.store)
	db.orchestrator = reason.New(
		db.resolver,
		extract.New(extract.Options{
			MaxNodes: cfg.Extract.MaxNodes,
			MaxHops:  cfg.Extract.MaxHops,
		}),
		validate.New(validate.Config{
			Threshold: cfg.Validation.Threshold,
			Weights: validate.Weights{
				Metadata:     cfg.Validation.MetadataWeight,
				Connectivity: cfg.Validation.ConnectivityWeight,
				Verification: cfg.Validation.VerificationWeight,
			},
		}),
		emitter,
	)

	if cfg.Auth.Enabled {
		db.authenticator = auth.New(auth.Config{
			MinPasswordLength: cfg.Auth.MinPasswordLength,
			TokenExpiry:       cfg.Auth.TokenExpiry,
		})
		if _, err := db.authenticator.CreateUser(cfg.Auth.Username, cfg.Auth.Password, auth.RoleAdmin); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to bootstrap auth: %w", err)
		}
	}

	return db, nil
}

// gcLoop compacts the Badger value log on a timer. Badger does not
// reclaim value-log space on its own. The loop exits on Close.
func (db *DB) gcLoop(store *storage.BadgerStore) {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopGC:
			return
		case <-ticker.C:
			if err := store.RunGC(); err != nil {
				return
			}
		}
	}
}

// PublishVersion freezes pub as the next version of its graph and records
// a GRAPH_PUBLISHED audit event.
func (db *DB) PublishVersion(ctx context.Context, pub storage.Publication) (*version.Version, error) {
	v, err := db.store.PublishVersion(ctx, pub)
	if err != nil {
		return nil, err
	}

	if _, aerr := db.emitter.Emit(audit.Event{
		Kind:    audit.KindGraphPublished,
		GraphID: string(v.GraphID),
		Details: map[string]any{
			"seq":        v.Seq,
			"kind":       string(v.Kind),
			"node_count": v.NodeCount,
			"edge_count": v.EdgeCount,
		},
	}); aerr != nil {
		return nil, fmt.Errorf("version %s published but not audited: %w", v, aerr)
	}

	return v, nil
}

// Query runs the reasoning pipeline.
func (db *DB) Query(ctx context.Context, req reason.Request) (*reason.Decision, error) {
	return db.orchestrator.Execute(ctx, req)
}

// Versions lists a graph's version records in ascending order.
func (db *DB) Versions(ctx context.Context, graphID graph.GraphID) ([]*version.Version, error) {
	return db.store.Versions(ctx, graphID)
}

// DiffVersions compares two versions of a graph.
func (db *DB) DiffVersions(ctx context.Context, graphID graph.GraphID, from, to int64) (*version.Diff, error) {
	return db.resolver.DiffVersions(ctx, graphID, from, to)
}

// Graphs lists all known graph IDs.
func (db *DB) Graphs(ctx context.Context) ([]graph.GraphID, error) {
	return db.store.Graphs(ctx)
}

// Snapshot loads the immutable snapshot at (graphID, seq).
func (db *DB) Snapshot(ctx context.Context, graphID graph.GraphID, seq int64) (*graph.Snapshot, error) {
	return db.store.Snapshot(ctx, graphID, seq)
}

// Trace returns a session's audit trail in timestamp order.
func (db *DB) Trace(sessionID string) []*audit.Event {
	return db.emitter.Trace(sessionID)
}

// AuditEvents queries the audit trail.
func (db *DB) AuditEvents(q audit.Query) []*audit.Event {
	return db.emitter.Events(q)
}

// Auth returns the authenticator, or nil when auth is disabled.
func (db *DB) Auth() *auth.Authenticator {
	return db.authenticator
}

// Config returns the effective configuration.
func (db *DB) Config() *config.Config {
	return db.cfg
}

// Stats summarizes the store's contents.
type Stats struct {
	Graphs      int `json:"graphs"`
	Versions    int `json:"versions"`
	AuditEvents int `json:"audit_events"`
	// Users is zero when auth is disabled.
	Users int `json:"users,omitempty"`
}

// Stats counts graphs, versions, audit events, and registered users.
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	ids, err := db.store.Graphs(ctx)
	if err != nil {
		return nil, err
	}

	s := &Stats{Graphs: len(ids), AuditEvents: db.emitter.Len()}
	if db.authenticator != nil {
		s.Users = db.authenticator.UserCount()
	}
	for _, id := range ids {
		vs, err := db.store.Versions(ctx, id)
		if err != nil {
			return nil, err
		}
		s.Versions += len(vs)
	}
	return s, nil
}

// Close releases storage and flushes the audit trail.
func (db *DB) Close() error {
	var firstErr error
	if db.stopGC != nil {
		close(db.stopGC)
		db.stopGC = nil
	}
	if db.emitter != nil {
		if err := db.emitter.Close(); err != nil {
			firstErr = err
		}
	}
	if db.store != nil {
		if err := db.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
