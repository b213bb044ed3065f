package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/rivadaviam/AI.me/pkg/cache"
	"github.com/rivadaviam/AI.me/pkg/graph"
	"github.com/rivadaviam/AI.me/pkg/version"
)

// Key prefixes for BadgerDB storage organization.
// Using single-byte prefixes for efficiency.
const (
	prefixGraph   = byte(0x01) // graph:graphID -> latest seq (8 bytes)
	prefixVersion = byte(0x02) // version:graphID:seq -> JSON(Version)
	prefixNode    = byte(0x03) // node:graphID:seq:nodeID -> JSON(Node)
	prefixEdge    = byte(0x04) // edge:graphID:seq:edgeID -> JSON(Edge)
)

// BadgerStore is the durable engine, backed by BadgerDB.
//
// Key Structure:
//   - Graph registry: 0x01 + graphID -> big-endian latest seq
//   - Versions:       0x02 + graphID + 0x00 + seq -> JSON(Version)
//   - Nodes:          0x03 + graphID + 0x00 + seq + 0x00 + nodeID -> JSON(Node)
//   - Edges:          0x04 + graphID + 0x00 + seq + 0x00 + edgeID -> JSON(Edge)
//
// A publication writes nodes, edges, the version record, and the registry
// entry in one transaction, so a crash either persists the whole version
// or none of it. Published data is immutable, which lets the store cache
// decoded snapshots indefinitely.
type BadgerStore struct {
	db *badger.DB

	mu     sync.RWMutex // protects closed
	closed bool

	// pubMu serializes publications so sequence numbers stay gapless.
	pubMu sync.Mutex

	snapCache *cache.SnapshotCache
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for data files. Created if missing.
	DataDir string

	// InMemory runs BadgerDB without touching disk. For tests.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but durable.
	SyncWrites bool

	// SnapshotCacheSize bounds the decoded snapshot cache. Zero means
	// the default capacity.
	SnapshotCacheSize int

	// Logger for BadgerDB internal logging. Nil silences it.
	Logger badger.Logger
}

// NewBadgerStore opens a persistent store at dataDir with default options.
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerStoreInMemory opens a store that keeps everything in RAM.
// Useful for tests that need the Badger codepaths without disk I/O.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{InMemory: true})
}

// NewBadgerStoreWithOptions opens a store with custom configuration.
func NewBadgerStoreWithOptions(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	// Modest buffer sizes; version payloads are small and read-mostly.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return &BadgerStore{
		db:        db,
		snapCache: cache.NewSnapshotCache(opts.SnapshotCacheSize, 0),
	}, nil
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func seqBytes(seq int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(seq))
	return b[:]
}

func graphKey(id graph.GraphID) []byte {
	return append([]byte{prefixGraph}, []byte(id)...)
}

func versionKey(id graph.GraphID, seq int64) []byte {
	key := make([]byte, 0, 1+len(id)+1+8)
	key = append(key, prefixVersion)
	key = append(key, []byte(id)...)
	key = append(key, 0x00)
	key = append(key, seqBytes(seq)...)
	return key
}

func versionPrefix(id graph.GraphID) []byte {
	key := make([]byte, 0, 1+len(id)+1)
	key = append(key, prefixVersion)
	key = append(key, []byte(id)...)
	key = append(key, 0x00)
	return key
}

func elementKey(prefix byte, id graph.GraphID, seq int64, elemID string) []byte {
	key := elementPrefix(prefix, id, seq)
	return append(key, []byte(elemID)...)
}

func elementPrefix(prefix byte, id graph.GraphID, seq int64) []byte {
	key := make([]byte, 0, 1+len(id)+1+8+1)
	key = append(key, prefix)
	key = append(key, []byte(id)...)
	key = append(key, 0x00)
	key = append(key, seqBytes(seq)...)
	key = append(key, 0x00)
	return key
}

// ============================================================================
// Store interface
// ============================================================================

func (b *BadgerStore) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStoreClosed
	}
	return nil
}

// PublishVersion freezes pub as the next version of its graph. The whole
// version is written in a single transaction.
func (b *BadgerStore) PublishVersion(ctx context.Context, pub Publication) (*version.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validatePublication(&pub); err != nil {
		return nil, err
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	nodes, edges := pub.clone()

	var v *version.Version
	var snap *graph.Snapshot
	err := b.db.Update(func(txn *badger.Txn) error {
		seq, err := readLatestSeq(txn, pub.GraphID)
		if err != nil {
			return err
		}
		seq++

		snap, err = graph.NewSnapshot(pub.GraphID, seq, nodes, edges)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidData, err)
		}

		for _, n := range nodes {
			data, err := json.Marshal(n)
			if err != nil {
				return fmt.Errorf("failed to encode node %q: %w", n.ID, err)
			}
			if err := txn.Set(elementKey(prefixNode, pub.GraphID, seq, string(n.ID)), data); err != nil {
				return err
			}
		}
		for _, e := range edges {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to encode edge %q: %w", e.ID, err)
			}
			if err := txn.Set(elementKey(prefixEdge, pub.GraphID, seq, string(e.ID)), data); err != nil {
				return err
			}
		}

		v = newVersionRecord(&pub, seq, snap, time.Now())
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode version: %w", err)
		}
		if err := txn.Set(versionKey(pub.GraphID, seq), data); err != nil {
			return err
		}

		return txn.Set(graphKey(pub.GraphID), seqBytes(seq))
	})
	if err != nil {
		return nil, err
	}

	b.snapCache.Put(v.String(), snap)

	return v, nil
}

func readLatestSeq(txn *badger.Txn, id graph.GraphID) (int64, error) {
	item, err := txn.Get(graphKey(id))
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var seq int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt graph registry entry for %q", id)
		}
		seq = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return seq, err
}

// Snapshot loads the snapshot at (graphID, seq), decoding from disk on the
// first read and serving from cache afterwards.
func (b *BadgerStore) Snapshot(ctx context.Context, graphID graph.GraphID, seq int64) (*graph.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("%s@%d", graphID, seq)
	if snap, ok := b.snapCache.Get(cacheKey); ok {
		return snap, nil
	}

	var nodes []*graph.Node
	var edges []*graph.Edge
	err := b.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(versionKey(graphID, seq)); err == badger.ErrKeyNotFound {
			return fmt.Errorf("graph %q seq %d: %w", graphID, seq, ErrNotFound)
		} else if err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = elementPrefix(prefixNode, graphID, seq)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var n graph.Node
				if err := json.Unmarshal(val, &n); err != nil {
					return fmt.Errorf("failed to decode node: %w", err)
				}
				nodes = append(nodes, &n)
				return nil
			})
			if err != nil {
				it.Close()
				return err
			}
		}
		it.Close()

		opts = badger.DefaultIteratorOptions
		opts.Prefix = elementPrefix(prefixEdge, graphID, seq)
		it = txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e graph.Edge
				if err := json.Unmarshal(val, &e); err != nil {
					return fmt.Errorf("failed to decode edge: %w", err)
				}
				edges = append(edges, &e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	snap, err := graph.NewSnapshot(graphID, seq, nodes, edges)
	if err != nil {
		return nil, fmt.Errorf("corrupt snapshot %s: %w", cacheKey, err)
	}

	b.snapCache.Put(cacheKey, snap)

	return snap, nil
}

// Versions returns the graph's version records in ascending seq order.
func (b *BadgerStore) Versions(ctx context.Context, graphID graph.GraphID) ([]*version.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var out []*version.Version
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = versionPrefix(graphID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var v version.Version
				if err := json.Unmarshal(val, &v); err != nil {
					return fmt.Errorf("failed to decode version: %w", err)
				}
				out = append(out, &v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("graph %q: %w", graphID, ErrNotFound)
	}

	// Seq is big-endian in the key, so iteration order is already
	// ascending; the sort is belt and suspenders for clarity.
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// LatestSeq returns the highest published sequence number of the graph.
func (b *BadgerStore) LatestSeq(ctx context.Context, graphID graph.GraphID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := b.checkOpen(); err != nil {
		return 0, err
	}

	var seq int64
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(graphKey(graphID))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("graph %q: %w", graphID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			seq = int64(binary.BigEndian.Uint64(val))
			return nil
		})
	})
	return seq, err
}

// Graphs lists all known graph IDs in ascending order.
func (b *BadgerStore) Graphs(ctx context.Context) ([]graph.GraphID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var out []graph.GraphID
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixGraph}
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			out = append(out, graph.GraphID(key[1:]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Close shuts the underlying BadgerDB down. Idempotent.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.snapCache.Clear()
	return b.db.Close()
}

// RunGC triggers a value log garbage collection cycle.
func (b *BadgerStore) RunGC() error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	err := b.db.RunValueLogGC(0.5)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}
