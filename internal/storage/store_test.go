package storage_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deidaraiorek/deisuggest/internal/config"
	"github.com/deidaraiorek/deisuggest/internal/storage"
)

type storeFactory func(t *testing.T) storage.Store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) storage.Store {
			return storage.NewMemoryStore()
		},
		"sqlite": func(t *testing.T) storage.Store {
			s, err := storage.OpenSQL("sqlite3", filepath.Join(t.TempDir(), "suggest.db"), 2)
			require.NoError(t, err)
			return s
		},
		"bolt": func(t *testing.T) storage.Store {
			s, err := storage.OpenBolt(filepath.Join(t.TempDir(), "suggest.bolt"), 2)
			require.NoError(t, err)
			return s
		},
	}
}

// forEachStore runs fn against a fresh instance of every implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s storage.Store)) {
	for name, open := range factories() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { s.Close() })
			fn(t, s)
		})
	}
}

func entries(t *testing.T, s storage.Store) []storage.Entry {
	t.Helper()
	var out []storage.Entry
	require.NoError(t, s.Each(context.Background(), func(e storage.Entry) error {
		out = append(out, e)
		return nil
	}))
	return out
}

func seedWhiteHouse(t *testing.T, s storage.Store) {
	t.Helper()
	require.NoError(t, s.IncrementBatch(context.Background(), []storage.Entry{
		{Prefix: "white house", Continuation: "press", Count: 5},
		{Prefix: "white house", Continuation: "and", Count: 5},
		{Prefix: "white house", Continuation: "the", Count: 3},
		{Prefix: "the white", Continuation: "house", Count: 7},
	}))
}

func TestUpsertIncrement(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		require.NoError(t, s.UpsertIncrement(ctx, "the white", "house", 1))
		require.NoError(t, s.UpsertIncrement(ctx, "the white", "house", 2))
		require.NoError(t, s.UpsertIncrement(ctx, "the white", "flag", 1))

		hits, err := s.TopK(ctx, "the white", 10)
		require.NoError(t, err)
		assert.Equal(t, []storage.Hit{
			{Continuation: "house", Count: 3},
			{Continuation: "flag", Count: 1},
		}, hits)
		assert.NoError(t, s.Verify(ctx))
	})
}

func TestIncrementBatchAcrossChunks(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		// Batch size is 2, so this spans three transactions and repeats a key.
		require.NoError(t, s.IncrementBatch(ctx, []storage.Entry{
			{Prefix: "a b", Continuation: "c", Count: 1},
			{Prefix: "a b", Continuation: "d", Count: 4},
			{Prefix: "a b", Continuation: "c", Count: 2},
			{Prefix: "b c", Continuation: "d", Count: 1},
			{Prefix: "b c", Continuation: "e", Count: 0},
		}))

		assert.Equal(t, []storage.Entry{
			{Prefix: "a b", Continuation: "c", Count: 3},
			{Prefix: "a b", Continuation: "d", Count: 4},
			{Prefix: "b c", Continuation: "d", Count: 1},
		}, entries(t, s))
	})
}

func TestConcurrentIncrements(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					assert.NoError(t, s.UpsertIncrement(ctx, "white house", "press", 1))
				}
			}()
		}
		wg.Wait()

		hits, err := s.TopK(ctx, "white house", 1)
		require.NoError(t, err)
		assert.Equal(t, []storage.Hit{{Continuation: "press", Count: 80}}, hits)
	})
}

func TestTopKRankingOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		seedWhiteHouse(t, s)

		tests := []struct {
			name   string
			prefix string
			k      int
			want   []storage.Hit
		}{
			{
				name:   "tie broken by continuation",
				prefix: "white house",
				k:      2,
				want: []storage.Hit{
					{Continuation: "and", Count: 5},
					{Continuation: "press", Count: 5},
				},
			},
			{
				name:   "k larger than rows",
				prefix: "white house",
				k:      10,
				want: []storage.Hit{
					{Continuation: "and", Count: 5},
					{Continuation: "press", Count: 5},
					{Continuation: "the", Count: 3},
				},
			},
			{name: "exact match only", prefix: "white", k: 10},
			{name: "no substring match", prefix: "house", k: 10},
			{name: "unknown prefix", prefix: "red square", k: 10},
			{name: "zero k", prefix: "white house", k: 0},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				hits, err := s.TopK(ctx, tt.prefix, tt.k)
				require.NoError(t, err)
				assert.Equal(t, tt.want, hits)
			})
		}
	})
}

func TestPrune(t *testing.T) {
	tests := []struct {
		name     string
		minCount uint64
		keepTop  int
		deleted  int64
		want     []storage.Entry
	}{
		{
			name:     "min count",
			minCount: 5,
			deleted:  1,
			want: []storage.Entry{
				{Prefix: "the white", Continuation: "house", Count: 7},
				{Prefix: "white house", Continuation: "and", Count: 5},
				{Prefix: "white house", Continuation: "press", Count: 5},
			},
		},
		{
			name:     "keep top per prefix",
			minCount: 1,
			keepTop:  1,
			deleted:  2,
			want: []storage.Entry{
				{Prefix: "the white", Continuation: "house", Count: 7},
				{Prefix: "white house", Continuation: "and", Count: 5},
			},
		},
		{
			name:     "drops whole prefixes",
			minCount: 6,
			deleted:  3,
			want: []storage.Entry{
				{Prefix: "the white", Continuation: "house", Count: 7},
			},
		},
		{
			name:     "no-op",
			minCount: 1,
			want: []storage.Entry{
				{Prefix: "the white", Continuation: "house", Count: 7},
				{Prefix: "white house", Continuation: "and", Count: 5},
				{Prefix: "white house", Continuation: "press", Count: 5},
				{Prefix: "white house", Continuation: "the", Count: 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forEachStore(t, func(t *testing.T, s storage.Store) {
				seedWhiteHouse(t, s)

				n, err := s.Prune(context.Background(), tt.minCount, tt.keepTop)
				require.NoError(t, err)
				assert.Equal(t, tt.deleted, n)
				assert.Equal(t, tt.want, entries(t, s))
			})
		})
	}
}

func TestResetAndMetadata(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		seedWhiteHouse(t, s)
		require.NoError(t, s.SetMetadata(ctx, storage.MetaBuildID, "first"))
		require.NoError(t, s.SetMetadata(ctx, storage.MetaBuildID, "second"))
		require.NoError(t, s.SetMetadata(ctx, storage.MetaDocuments, "12"))

		meta, err := s.Metadata(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			storage.MetaBuildID:   "second",
			storage.MetaDocuments: "12",
		}, meta)

		require.NoError(t, s.Reset(ctx))
		assert.Empty(t, entries(t, s))
		meta, err = s.Metadata(ctx)
		require.NoError(t, err)
		assert.Empty(t, meta)

		hits, err := s.TopK(ctx, "white house", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestEachStopsOnError(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Store) {
		seedWhiteHouse(t, s)
		stop := errors.New("stop")

		calls := 0
		err := s.Each(context.Background(), func(storage.Entry) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})
}

func TestRankDetectsDuplicates(t *testing.T) {
	_, err := storage.Rank("white house", []storage.Hit{
		{Continuation: "press", Count: 5},
		{Continuation: "and", Count: 2},
		{Continuation: "press", Count: 1},
	}, 10)

	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrStoreInconsistency))

	var inconsistency *storage.InconsistencyError
	require.ErrorAs(t, err, &inconsistency)
	assert.Equal(t, "press", inconsistency.Continuation)
	assert.Equal(t, 2, inconsistency.Rows)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := storage.NewMemoryStore()
	seedWhiteHouse(t, src)
	require.NoError(t, src.SetMetadata(ctx, storage.MetaBuildID, "abc"))

	var buf bytes.Buffer
	n, err := storage.WriteSnapshot(ctx, src, &buf)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	forEachStore(t, func(t *testing.T, dst storage.Store) {
		n, err := storage.ReadSnapshot(ctx, bytes.NewReader(buf.Bytes()), dst, 3)
		require.NoError(t, err)
		assert.EqualValues(t, 4, n)
		assert.Equal(t, entries(t, src), entries(t, dst))

		meta, err := dst.Metadata(ctx)
		require.NoError(t, err)
		assert.Equal(t, "abc", meta[storage.MetaBuildID])
	})
}

func TestOpenMemoryWithSnapshot(t *testing.T) {
	ctx := context.Background()
	src := storage.NewMemoryStore()
	seedWhiteHouse(t, src)

	path := filepath.Join(t.TempDir(), "table.msgpack")
	_, err := storage.SaveSnapshotFile(ctx, path, src)
	require.NoError(t, err)

	s, err := storage.Open(config.StoreConfig{Driver: "memory", Snapshot: path})
	require.NoError(t, err)
	defer s.Close()

	hits, err := s.TopK(ctx, "the white", 1)
	require.NoError(t, err)
	assert.Equal(t, []storage.Hit{{Continuation: "house", Count: 7}}, hits)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := storage.Open(config.StoreConfig{Driver: "postgres"})
	assert.Error(t, err)
}

func TestSQLStoreUnavailable(t *testing.T) {
	s, err := storage.OpenSQL("sqlite3", filepath.Join(t.TempDir(), "suggest.db"), 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.TopK(context.Background(), "white house", 10)
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
}

func TestEmptyKeysSkipped(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		require.NoError(t, s.UpsertIncrement(ctx, "", "house", 1))
		require.NoError(t, s.UpsertIncrement(ctx, "the white", "", 1))
		require.NoError(t, s.IncrementBatch(ctx, []storage.Entry{
			{Prefix: "", Continuation: "press", Count: 2},
			{Prefix: "white house", Continuation: "press", Count: 2},
			{Prefix: "white house", Continuation: "", Count: 2},
		}))

		assert.Equal(t, []storage.Entry{
			{Prefix: "white house", Continuation: "press", Count: 2},
		}, entries(t, s))
	})
}

func TestBoltStoreSkipsOversizedKeys(t *testing.T) {
	s, err := storage.OpenBolt(filepath.Join(t.TempDir(), "suggest.bolt"), 10)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	long := strings.Repeat("x", 40000)
	require.NoError(t, s.IncrementBatch(ctx, []storage.Entry{
		{Prefix: "white house", Continuation: long, Count: 1},
		{Prefix: long, Continuation: "press", Count: 1},
		{Prefix: "white house", Continuation: "and", Count: 1},
	}))
	require.NoError(t, s.UpsertIncrement(ctx, "white house", long, 1))

	assert.Equal(t, []storage.Entry{
		{Prefix: "white house", Continuation: "and", Count: 1},
	}, entries(t, s))
}

func TestBoltStoreUnavailable(t *testing.T) {
	s, err := storage.OpenBolt(filepath.Join(t.TempDir(), "suggest.bolt"), 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ctx := context.Background()
	_, err = s.TopK(ctx, "white house", 10)
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.ErrorIs(t, s.SetMetadata(ctx, storage.MetaBuildID, "x"), storage.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Reset(ctx), storage.ErrStoreUnavailable)
	_, err = s.Metadata(ctx)
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
	_, err = s.Prune(ctx, 2, 0)
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
}
