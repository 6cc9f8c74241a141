package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/tchap/go-patricia/v2/patricia"
)

// MemoryStore keeps the table in a patricia trie keyed by prefix. Each trie item holds the
// continuation counts of one prefix, so TopK touches a single node.
type MemoryStore struct {
	mu   sync.RWMutex
	trie *patricia.Trie
	meta map[string]string
	rows int
}

type continuations map[string]uint64

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trie: patricia.NewTrie(),
		meta: make(map[string]string),
	}
}

func (s *MemoryStore) increment(prefix, continuation string, delta uint64) {
	if !storable(prefix, continuation) {
		logSkipped("empty key", prefix, continuation)
		return
	}
	key := patricia.Prefix(prefix)
	item := s.trie.Get(key)
	if item == nil {
		item = make(continuations)
		s.trie.Insert(key, item)
	}
	counts := item.(continuations)
	if _, ok := counts[continuation]; !ok {
		s.rows++
	}
	counts[continuation] += delta
}

func (s *MemoryStore) UpsertIncrement(ctx context.Context, prefix, continuation string, delta uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.increment(prefix, continuation, delta)
	return nil
}

func (s *MemoryStore) IncrementBatch(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.Count == 0 {
			continue
		}
		s.increment(e.Prefix, e.Continuation, e.Count)
	}
	return ctx.Err()
}

func (s *MemoryStore) TopK(ctx context.Context, prefix string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	item := s.trie.Get(patricia.Prefix(prefix))
	var hits []Hit
	if item != nil {
		counts := item.(continuations)
		hits = make([]Hit, 0, len(counts))
		for c, n := range counts {
			hits = append(hits, Hit{Continuation: c, Count: n})
		}
	}
	s.mu.RUnlock()

	return Rank(prefix, hits, k)
}

func (s *MemoryStore) Each(ctx context.Context, fn func(Entry) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Trie children are not kept in key order.
	var prefixes []string
	err := s.trie.Visit(func(p patricia.Prefix, item patricia.Item) error {
		prefixes = append(prefixes, string(p))
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(prefixes)

	for _, prefix := range prefixes {
		if err := ctx.Err(); err != nil {
			return err
		}
		counts := s.trie.Get(patricia.Prefix(prefix)).(continuations)
		keys := make([]string, 0, len(counts))
		for c := range counts {
			keys = append(keys, c)
		}
		sort.Strings(keys)
		for _, c := range keys {
			if err := fn(Entry{Prefix: prefix, Continuation: c, Count: counts[c]}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *MemoryStore) Prune(ctx context.Context, minCount uint64, keepTop int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	var emptied []patricia.Prefix
	err := s.trie.Visit(func(p patricia.Prefix, item patricia.Item) error {
		counts := item.(continuations)
		hits := make([]Hit, 0, len(counts))
		for c, n := range counts {
			hits = append(hits, Hit{Continuation: c, Count: n})
		}
		for _, h := range pruned(hits, minCount, keepTop) {
			delete(counts, h.Continuation)
			deleted++
		}
		if len(counts) == 0 {
			emptied = append(emptied, append(patricia.Prefix(nil), p...))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, p := range emptied {
		s.trie.Delete(p)
	}
	s.rows -= int(deleted)
	return deleted, nil
}

// Verify always succeeds: continuations are map keys and cannot repeat.
func (s *MemoryStore) Verify(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trie = patricia.NewTrie()
	s.meta = make(map[string]string)
	s.rows = 0
	return nil
}

func (s *MemoryStore) SetMetadata(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.meta[key] = value
	return nil
}

func (s *MemoryStore) Metadata(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta := make(map[string]string, len(s.meta))
	for k, v := range s.meta {
		meta[k] = v
	}
	return meta, nil
}

// Len returns the number of rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows
}

func (s *MemoryStore) Close() error {
	return nil
}
