// Package ngram turns documents into (prefix, continuation) frequency counts.
//
// A document's title and body are analyzed into one word stream. A window of
// prefixLength + continuationLength words slides over the stream with stride 1; the first
// prefixLength words form the prefix and the rest the continuation. Windows that would run
// past the end of the stream are dropped, so short documents contribute nothing.
//
// With MaxNgram set, every window of up to MaxNgram words is split at each configured prefix
// length instead, so "president barack obama" also yields ("president", "barack obama").
package ngram

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/deidaraiorek/deisuggest/internal/corpus"
	"github.com/deidaraiorek/deisuggest/internal/storage"
	"github.com/deidaraiorek/deisuggest/internal/textnorm"
)

// Options select the window shapes counted per document.
type Options struct {
	PrefixLengths      []int
	ContinuationLength int
	// MaxNgram, when > 0, overrides ContinuationLength: each prefix length p is paired with
	// every continuation length c >= 1 where p+c <= MaxNgram.
	MaxNgram int
}

// DefaultOptions counts two-word prefixes with single-word continuations.
func DefaultOptions() Options {
	return Options{PrefixLengths: []int{2}, ContinuationLength: 1}
}

func (o Options) withDefaults() Options {
	if len(o.PrefixLengths) == 0 {
		o.PrefixLengths = []int{2}
	}
	if o.ContinuationLength < 1 {
		o.ContinuationLength = 1
	}
	if o.MaxNgram < 0 {
		o.MaxNgram = 0
	}
	return o
}

// continuationLengths lists the continuation lengths counted after a prefix of p words.
func (o Options) continuationLengths(p int) []int {
	if o.MaxNgram == 0 {
		return []int{o.ContinuationLength}
	}
	var lengths []int
	for c := 1; p+c <= o.MaxNgram; c++ {
		lengths = append(lengths, c)
	}
	return lengths
}

// Pair is one (prefix, continuation) key.
type Pair struct {
	Prefix       string
	Continuation string
}

// Counts aggregates pair observations.
type Counts map[Pair]uint64

func (c Counts) Add(p Pair, n uint64) {
	c[p] += n
}

// Merge adds every count of other into c.
func (c Counts) Merge(other Counts) {
	for p, n := range other {
		c[p] += n
	}
}

// Entries returns the counts as store rows ordered by prefix, then continuation.
func (c Counts) Entries() []storage.Entry {
	entries := make([]storage.Entry, 0, len(c))
	for p, n := range c {
		entries = append(entries, storage.Entry{Prefix: p.Prefix, Continuation: p.Continuation, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Prefix != entries[j].Prefix {
			return entries[i].Prefix < entries[j].Prefix
		}
		return entries[i].Continuation < entries[j].Continuation
	})
	return entries
}

// Windows calls fn once per window of words for every configured prefix and continuation
// length. It returns the number of windows.
func Windows(words []string, opts Options, fn func(Pair)) int {
	opts = opts.withDefaults()

	n := 0
	for _, p := range opts.PrefixLengths {
		if p < 1 {
			continue
		}
		for _, c := range opts.continuationLengths(p) {
			width := p + c
			for i := 0; i+width <= len(words); i++ {
				fn(Pair{
					Prefix:       strings.Join(words[i:i+p], " "),
					Continuation: strings.Join(words[i+p:i+width], " "),
				})
				n++
			}
		}
	}
	return n
}

// Indexer counts the windows of documents using a shared analyzer, so the keys it produces
// match the keys the suggestion service looks up.
type Indexer struct {
	analyzer *textnorm.Analyzer
	opts     Options
}

func NewIndexer(analyzer *textnorm.Analyzer, opts Options) *Indexer {
	if analyzer == nil {
		analyzer = textnorm.NewAnalyzer(textnorm.Filters{})
	}
	return &Indexer{analyzer: analyzer, opts: opts.withDefaults()}
}

// Options returns the window shapes in effect.
func (ix *Indexer) Options() Options {
	return ix.opts
}

// Settings returns the analyzer and window settings as store metadata, so a server can tell
// whether its own configuration still produces the keys the table was built with.
func (ix *Indexer) Settings() map[string]string {
	return map[string]string{
		storage.MetaPrefixLengths:      joinInts(ix.opts.PrefixLengths),
		storage.MetaContinuationLength: strconv.Itoa(ix.opts.ContinuationLength),
		storage.MetaMaxNgram:           strconv.Itoa(ix.opts.MaxNgram),
		storage.MetaFilters:            ix.analyzer.Filters().String(),
	}
}

// Mismatches lists the settings keys whose value in meta differs from the indexer's.
// Keys missing from meta (tables built before they were recorded) are not reported.
func (ix *Indexer) Mismatches(meta map[string]string) []string {
	var keys []string
	for k, v := range ix.Settings() {
		if got, ok := meta[k]; ok && got != v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// CountDocument adds the windows of doc to counts and returns how many were added.
// Blank documents add nothing.
func (ix *Indexer) CountDocument(doc corpus.Document, counts Counts) int {
	words, err := ix.analyzer.Words(doc.Text())
	if err != nil {
		return 0
	}
	return Windows(words, ix.opts, func(p Pair) {
		counts[p]++
	})
}

// Count indexes every document of src into one in-memory map. It is meant for small
// corpora; Builder bounds memory for large ones.
func (ix *Indexer) Count(ctx context.Context, src corpus.Source) (Counts, error) {
	counts := make(Counts)
	err := src.Each(ctx, func(doc corpus.Document) error {
		ix.CountDocument(doc, counts)
		return nil
	})
	if err != nil && !errors.Is(err, corpus.ErrStop) {
		return nil, err
	}
	return counts, nil
}

// Index counts the windows of docs for a single prefix length with one-word continuations
// and no word filters.
func Index(docs []corpus.Document, prefixLength int) Counts {
	ix := NewIndexer(nil, Options{PrefixLengths: []int{prefixLength}, ContinuationLength: 1})
	counts := make(Counts)
	for _, doc := range docs {
		ix.CountDocument(doc, counts)
	}
	return counts
}
