// Package suggest serves ranked next-word suggestions for a typed phrase.
//
// The service is independent of any transport: it normalizes the input with the same
// analyzer the index was built with, asks the store for the top continuations of that exact
// key and formats each hit as "<key> <continuation>". It never mutates the store.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/deidaraiorek/deisuggest/internal/storage"
	"github.com/deidaraiorek/deisuggest/internal/textnorm"
)

// ErrTimeout is returned, alongside an empty result, when the store does not answer
// within the query timeout.
var ErrTimeout = errors.New("suggest: query timed out")

// Ranker looks up ranked continuations for an exact prefix. storage.Store satisfies it.
type Ranker interface {
	TopK(ctx context.Context, prefix string, k int) ([]storage.Hit, error)
}

// Options tune a Service. Zero values fall back to the defaults below.
type Options struct {
	DefaultLimit int
	MaxLimit     int
	Timeout      time.Duration
	// CacheSize is the number of results kept in memory; 0 disables caching.
	CacheSize int
}

const (
	defaultLimit = 10
	maxLimit     = 50
)

// Result is an ordered list of suggestions for one query.
type Result struct {
	// Key is the normalized input; empty when the input was blank.
	Key         string
	Suggestions []string
}

func emptyResult(key string) Result {
	return Result{Key: key, Suggestions: []string{}}
}

// Service answers suggestion queries. It is safe for concurrent use.
type Service struct {
	ranker   Ranker
	analyzer *textnorm.Analyzer
	opts     Options
	cache    *lru.Cache
}

func New(ranker Ranker, analyzer *textnorm.Analyzer, opts Options) (*Service, error) {
	if analyzer == nil {
		analyzer = textnorm.NewAnalyzer(textnorm.Filters{})
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = defaultLimit
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = max(maxLimit, opts.DefaultLimit)
	}

	s := &Service{ranker: ranker, analyzer: analyzer, opts: opts}
	if opts.CacheSize > 0 {
		cache, err := lru.New(opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Limit clamps a requested k to the service bounds; k <= 0 selects the default.
func (s *Service) Limit(k int) int {
	if k <= 0 {
		return s.opts.DefaultLimit
	}
	return min(k, s.opts.MaxLimit)
}

// Suggest returns up to k suggestions for raw. Blank input and unknown prefixes yield an
// empty result and a nil error. When the store fails or times out the result is empty and
// the error says why; callers decide whether to surface it.
func (s *Service) Suggest(ctx context.Context, raw string, k int) (Result, error) {
	key, err := s.analyzer.Key(raw)
	if errors.Is(err, textnorm.ErrEmptyInput) {
		return emptyResult(""), nil
	}
	if err != nil {
		return emptyResult(""), err
	}

	k = s.Limit(k)
	cacheKey := strconv.Itoa(k) + "\x00" + key
	// Cached slices are shared, so callers only ever see copies.
	if s.cache != nil {
		if cached, ok := s.cache.Get(cacheKey); ok {
			return Result{Key: key, Suggestions: slices.Clone(cached.([]string))}, nil
		}
	}

	hits, err := s.topK(ctx, key, k)
	if err != nil {
		return emptyResult(key), err
	}

	suggestions := make([]string, len(hits))
	for i, h := range hits {
		suggestions[i] = key + " " + h.Continuation
	}
	if s.cache != nil {
		s.cache.Add(cacheKey, slices.Clone(suggestions))
	}
	return Result{Key: key, Suggestions: suggestions}, nil
}

type topKResult struct {
	hits []storage.Hit
	err  error
}

// topK bounds the store call by the query timeout even if the store ignores its context.
func (s *Service) topK(ctx context.Context, key string, k int) ([]storage.Hit, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	done := make(chan topKResult, 1)
	go func() {
		hits, err := s.ranker.TopK(ctx, key, k)
		done <- topKResult{hits: hits, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %q after %s: %w", ErrTimeout, key, s.opts.Timeout, r.err)
		}
		if r.err != nil {
			return nil, fmt.Errorf("lookup %q: %w", key, r.err)
		}
		return r.hits, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %q after %s", ErrTimeout, key, s.opts.Timeout)
		}
		return nil, ctx.Err()
	}
}
