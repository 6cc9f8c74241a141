// Package storage persists the (prefix, continuation, count) frequency table.
//
// The table is written by a batch build (increments only) and read by the suggestion
// service. Every implementation keys rows by (prefix, continuation), supports exact-match
// lookup on prefix without scanning the whole table, and returns hits in ranking order:
// count descending, then continuation ascending.
package storage

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/deidaraiorek/deisuggest/internal/config"
)

// Entry is one row of the frequency table.
type Entry struct {
	Prefix       string `msgpack:"p"`
	Continuation string `msgpack:"c"`
	Count        uint64 `msgpack:"n"`
}

// Hit is a ranked continuation for a prefix.
type Hit struct {
	Continuation string
	Count        uint64
}

// Metadata keys written by the builder.
const (
	MetaBuildID       = "build_id"
	MetaStartedAt     = "started_at"
	MetaCompletedAt   = "completed_at"
	MetaDocuments     = "documents"
	MetaPairs         = "pairs"
	MetaPrefixLengths = "prefix_lengths"
	MetaComplete      = "indexing_complete"

	// Analyzer and window settings the table was built with.
	MetaFilters            = "filters"
	MetaContinuationLength = "continuation_length"
	MetaMaxNgram           = "max_ngram"
)

// Store is the frequency table.
type Store interface {
	// UpsertIncrement creates the row with count = delta or atomically adds delta to it.
	// Rows a backend cannot key (an empty key, or one over its key size limit) are skipped
	// without error, so one odd token never aborts a build.
	UpsertIncrement(ctx context.Context, prefix, continuation string, delta uint64) error
	// IncrementBatch applies UpsertIncrement for every entry, using Count as the delta.
	IncrementBatch(ctx context.Context, entries []Entry) error
	// TopK returns up to k hits for an exact prefix in ranking order.
	TopK(ctx context.Context, prefix string, k int) ([]Hit, error)
	// Each visits every row ordered by prefix, then continuation.
	Each(ctx context.Context, fn func(Entry) error) error
	// Prune deletes rows with count below minCount and, when keepTop > 0, every row ranked
	// below keepTop within its prefix. It returns the number of deleted rows.
	Prune(ctx context.Context, minCount uint64, keepTop int) (int64, error)
	// Verify reports an *InconsistencyError if a (prefix, continuation) pair is stored twice.
	Verify(ctx context.Context) error
	// Reset removes all rows and metadata ahead of a rebuild.
	Reset(ctx context.Context) error
	SetMetadata(ctx context.Context, key, value string) error
	Metadata(ctx context.Context) (map[string]string, error)
	Close() error
}

// storable reports whether a row has both keys. Every store skips rows with an empty key
// instead of failing the write.
func storable(prefix, continuation string) bool {
	return prefix != "" && continuation != ""
}

func logSkipped(reason, prefix, continuation string) {
	log.Debug("Skipping row", "reason", reason, "prefix_bytes", len(prefix), "continuation_bytes", len(continuation))
}

// Open creates the store selected by cfg.Driver.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite3", "mysql":
		return OpenSQL(cfg.Driver, cfg.DSN, cfg.BatchSize)
	case "bolt":
		return OpenBolt(cfg.DSN, cfg.BatchSize)
	case "memory":
		s := NewMemoryStore()
		if cfg.Snapshot != "" {
			if _, err := LoadSnapshotFile(context.Background(), cfg.Snapshot, s, cfg.BatchSize); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
