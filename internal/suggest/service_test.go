package suggest_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deidaraiorek/deisuggest/internal/storage"
	"github.com/deidaraiorek/deisuggest/internal/suggest"
	"github.com/deidaraiorek/deisuggest/internal/textnorm"
)

func whiteHouseStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	require.NoError(t, store.IncrementBatch(context.Background(), []storage.Entry{
		{Prefix: "white house", Continuation: "press", Count: 5},
		{Prefix: "white house", Continuation: "and", Count: 5},
		{Prefix: "white house", Continuation: "the", Count: 3},
	}))
	return store
}

func newService(t *testing.T, ranker suggest.Ranker, opts suggest.Options) *suggest.Service {
	t.Helper()
	svc, err := suggest.New(ranker, nil, opts)
	require.NoError(t, err)
	return svc
}

func TestSuggest(t *testing.T) {
	svc := newService(t, whiteHouseStore(t), suggest.Options{})

	tests := []struct {
		name     string
		input    string
		k        int
		expected []string
	}{
		{
			name:     "tie broken alphabetically",
			input:    "white house",
			k:        2,
			expected: []string{"white house and", "white house press"},
		},
		{
			name:     "input is normalized",
			input:    "  White   HOUSE ",
			k:        10,
			expected: []string{"white house and", "white house press", "white house the"},
		},
		{
			name:     "default limit",
			input:    "white house",
			expected: []string{"white house and", "white house press", "white house the"},
		},
		{name: "empty input", input: "", k: 10, expected: []string{}},
		{name: "blank input", input: "   ", k: 10, expected: []string{}},
		{name: "unknown prefix", input: "red square", k: 10, expected: []string{}},
		{name: "prefix of a key is not a match", input: "white", k: 10, expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Suggest(context.Background(), tt.input, tt.k)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Suggestions)
		})
	}
}

func TestSuggestUsesAnalyzerFilters(t *testing.T) {
	analyzer := textnorm.NewAnalyzer(textnorm.Filters{LettersOnly: true})
	svc, err := suggest.New(whiteHouseStore(t), analyzer, suggest.Options{})
	require.NoError(t, err)

	result, err := svc.Suggest(context.Background(), "White-House!", 1)
	require.NoError(t, err)
	assert.Equal(t, "white house", result.Key)
	assert.Equal(t, []string{"white house and"}, result.Suggestions)
}

func TestLimit(t *testing.T) {
	svc := newService(t, whiteHouseStore(t), suggest.Options{DefaultLimit: 5, MaxLimit: 20})

	assert.Equal(t, 5, svc.Limit(0))
	assert.Equal(t, 5, svc.Limit(-3))
	assert.Equal(t, 7, svc.Limit(7))
	assert.Equal(t, 20, svc.Limit(100))
}

// slowRanker blocks until released, ignoring its context.
type slowRanker struct {
	release chan struct{}
}

func (r slowRanker) TopK(ctx context.Context, prefix string, k int) ([]storage.Hit, error) {
	<-r.release
	return []storage.Hit{{Continuation: "late", Count: 1}}, nil
}

func TestSuggestTimeout(t *testing.T) {
	ranker := slowRanker{release: make(chan struct{})}
	defer close(ranker.release)

	svc := newService(t, ranker, suggest.Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	result, err := svc.Suggest(context.Background(), "white house", 10)
	assert.ErrorIs(t, err, suggest.ErrTimeout)
	assert.Empty(t, result.Suggestions)
	assert.NotNil(t, result.Suggestions)
	assert.Less(t, time.Since(start), time.Second)
}

type errRanker struct{ err error }

func (r errRanker) TopK(context.Context, string, int) ([]storage.Hit, error) {
	return nil, r.err
}

func TestSuggestStoreFailure(t *testing.T) {
	unavailable := errors.Join(storage.ErrStoreUnavailable, errors.New("connection refused"))
	svc := newService(t, errRanker{err: unavailable}, suggest.Options{Timeout: time.Second})

	result, err := svc.Suggest(context.Background(), "white house", 10)
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, suggest.ErrTimeout)
	assert.Equal(t, []string{}, result.Suggestions)
}

// countingRanker records how often the store is hit.
type countingRanker struct {
	suggest.Ranker
	calls atomic.Int32
}

func (r *countingRanker) TopK(ctx context.Context, prefix string, k int) ([]storage.Hit, error) {
	r.calls.Add(1)
	return r.Ranker.TopK(ctx, prefix, k)
}

func TestSuggestCache(t *testing.T) {
	ranker := &countingRanker{Ranker: whiteHouseStore(t)}
	svc := newService(t, ranker, suggest.Options{CacheSize: 8})

	for _, input := range []string{"white house", "WHITE house", " white  house "} {
		result, err := svc.Suggest(context.Background(), input, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"white house and", "white house press"}, result.Suggestions)
	}
	assert.EqualValues(t, 1, ranker.calls.Load())

	// A different k is a different entry.
	_, err := svc.Suggest(context.Background(), "white house", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ranker.calls.Load())
}

func TestSuggestFailuresNotCached(t *testing.T) {
	ranker := &countingRanker{Ranker: errRanker{err: storage.ErrStoreUnavailable}}
	svc := newService(t, ranker, suggest.Options{CacheSize: 8})

	for i := 0; i < 2; i++ {
		_, err := svc.Suggest(context.Background(), "white house", 2)
		assert.Error(t, err)
	}
	assert.EqualValues(t, 2, ranker.calls.Load())
}

func TestSuggestCacheReturnsCopies(t *testing.T) {
	svc := newService(t, whiteHouseStore(t), suggest.Options{CacheSize: 8})
	want := []string{"white house and", "white house press"}

	first, err := svc.Suggest(context.Background(), "white house", 2)
	require.NoError(t, err)
	first.Suggestions[0] = "mutated"

	second, err := svc.Suggest(context.Background(), "white house", 2)
	require.NoError(t, err)
	assert.Equal(t, want, second.Suggestions)
	second.Suggestions[1] = "mutated"

	third, err := svc.Suggest(context.Background(), "white house", 2)
	require.NoError(t, err)
	assert.Equal(t, want, third.Suggestions)
}
