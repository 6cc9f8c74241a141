package ngram

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/deidaraiorek/deisuggest/internal/corpus"
	"github.com/deidaraiorek/deisuggest/internal/logger"
	"github.com/deidaraiorek/deisuggest/internal/storage"
)

// BuildOptions control parallelism, memory and post-build pruning.
type BuildOptions struct {
	// Workers is the number of goroutines windowing documents. Defaults to NumCPU.
	Workers int
	// FlushSize is the number of distinct pairs a worker holds before writing them out.
	FlushSize int
	// MinCount drops rows whose final count is lower.
	MinCount uint64
	// KeepTop keeps only the best rows per prefix when > 0.
	KeepTop int
}

// Report summarizes a finished build.
type Report struct {
	BuildID   string
	Documents int64
	// Empty counts documents too short (or blank) to yield a window.
	Empty     int64
	// Pairs counts window observations, not distinct rows.
	Pairs     int64
	Flushes   int64
	Pruned    int64
	Elapsed   time.Duration
}

// Builder rebuilds a store from a corpus in one batch pass.
type Builder struct {
	indexer *Indexer
	store   storage.Store
	opts    BuildOptions
	logger  *log.Logger
}

func NewBuilder(indexer *Indexer, store storage.Store, opts BuildOptions) *Builder {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.FlushSize <= 0 {
		opts.FlushSize = 50000
	}
	return &Builder{
		indexer: indexer,
		store:   store,
		opts:    opts,
		logger:  logger.New("ngram"),
	}
}

type buildStats struct {
	documents atomic.Int64
	empty     atomic.Int64
	pairs     atomic.Int64
	flushes   atomic.Int64
}

// Build clears the store and indexes src into it. Documents are windowed by a pool of
// workers, each aggregating into a private map that is flushed to the store whenever it
// reaches FlushSize pairs. Counts are commutative, so the result does not depend on worker
// count or document order. A failed verification after the build is returned as an error
// matching storage.ErrStoreInconsistency.
func (b *Builder) Build(ctx context.Context, src corpus.Source) (Report, error) {
	start := time.Now()
	report := Report{BuildID: uuid.NewString()}

	if err := b.store.Reset(ctx); err != nil {
		return report, fmt.Errorf("failed to reset store: %w", err)
	}
	meta := b.indexer.Settings()
	meta[storage.MetaBuildID] = report.BuildID
	meta[storage.MetaStartedAt] = start.UTC().Format(time.RFC3339)
	meta[storage.MetaComplete] = "false"
	if err := b.writeMetadata(ctx, meta); err != nil {
		return report, err
	}

	b.logger.Info("Starting build", "id", report.BuildID, "workers", b.opts.Workers, "flush", b.opts.FlushSize)

	var stats buildStats
	if err := b.run(ctx, src, &stats); err != nil {
		return report, err
	}
	report.Documents = stats.documents.Load()
	report.Empty = stats.empty.Load()
	report.Pairs = stats.pairs.Load()
	report.Flushes = stats.flushes.Load()

	b.logger.Info("Indexed corpus", "documents", report.Documents, "empty", report.Empty, "pairs", report.Pairs)

	if b.opts.MinCount > 1 || b.opts.KeepTop > 0 {
		pruned, err := b.store.Prune(ctx, b.opts.MinCount, b.opts.KeepTop)
		if err != nil {
			return report, fmt.Errorf("failed to prune: %w", err)
		}
		report.Pruned = pruned
		b.logger.Info("Pruned rows", "deleted", pruned, "min_count", b.opts.MinCount, "keep_top", b.opts.KeepTop)
	}

	if err := b.store.Verify(ctx); err != nil {
		b.logger.Error("Store failed verification", "err", err)
		return report, fmt.Errorf("build %s: %w", report.BuildID, err)
	}

	report.Elapsed = time.Since(start)
	if err := b.writeMetadata(ctx, map[string]string{
		storage.MetaCompletedAt: time.Now().UTC().Format(time.RFC3339),
		storage.MetaDocuments:   strconv.FormatInt(report.Documents, 10),
		storage.MetaPairs:       strconv.FormatInt(report.Pairs, 10),
		storage.MetaComplete:    "true",
	}); err != nil {
		return report, err
	}

	b.logger.Info("Build complete", "id", report.BuildID, "elapsed", report.Elapsed.Round(time.Millisecond))
	return report, nil
}

func (b *Builder) run(parent context.Context, src corpus.Source, stats *buildStats) error {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	docs := make(chan corpus.Document, b.opts.Workers*2)

	var wg sync.WaitGroup
	for i := 0; i < b.opts.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			if err := b.worker(ctx, workerID, docs, stats); err != nil {
				cancel(err)
			}
		}(i)
	}

	err := src.Each(ctx, func(doc corpus.Document) error {
		select {
		case docs <- doc:
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	})
	close(docs)
	wg.Wait()

	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	if err != nil && !errors.Is(err, corpus.ErrStop) {
		return fmt.Errorf("failed to read corpus: %w", err)
	}
	return nil
}

func (b *Builder) worker(ctx context.Context, workerID int, docs <-chan corpus.Document, stats *buildStats) error {
	local := make(Counts)

	flush := func() error {
		if len(local) == 0 {
			return nil
		}
		if err := b.store.IncrementBatch(ctx, local.Entries()); err != nil {
			return fmt.Errorf("worker %d flush: %w", workerID, err)
		}
		stats.flushes.Add(1)
		b.logger.Debug("Flushed counts", "worker", workerID, "pairs", len(local))
		local = make(Counts)
		return nil
	}

	for doc := range docs {
		if ctx.Err() != nil {
			// Keep draining so the producer never blocks.
			continue
		}

		n := b.indexer.CountDocument(doc, local)
		if n == 0 {
			stats.empty.Add(1)
		}
		stats.pairs.Add(int64(n))
		if done := stats.documents.Add(1); done%10000 == 0 {
			b.logger.Info("Progress", "documents", done, "pairs", stats.pairs.Load())
		}

		if len(local) >= b.opts.FlushSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	return flush()
}

func (b *Builder) writeMetadata(ctx context.Context, meta map[string]string) error {
	for k, v := range meta {
		if err := b.store.SetMetadata(ctx, k, v); err != nil {
			return fmt.Errorf("failed to write metadata %s: %w", k, err)
		}
	}
	return nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
