// Package corpus streams raw documents from tabular files, text files, HTML pages or a crawled
// pages database. Sources are finite and restartable: every call to Each starts from the beginning.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMalformedRecord marks a record with missing or unusable fields. Such records are coerced
// to empty strings and logged; they never abort ingestion.
var ErrMalformedRecord = errors.New("corpus: malformed record")

// ErrStop can be returned by an Each callback to end iteration early without an error.
var ErrStop = errors.New("corpus: stop")

// Document is one title/body pair. It is consumed once by the indexer and not retained.
type Document struct {
	Title string
	Body  string
}

// Text joins title and body into the single stream the indexer windows over.
func (d Document) Text() string {
	switch {
	case d.Title == "":
		return d.Body
	case d.Body == "":
		return d.Title
	}
	return d.Title + " " + d.Body
}

// Source yields documents in a stable order.
type Source interface {
	// Each calls fn for every document. Iteration stops at the first error returned by fn;
	// ErrStop ends it cleanly.
	Each(ctx context.Context, fn func(Document) error) error
}

// MalformedRecordError describes a coerced record.
type MalformedRecordError struct {
	Source string
	Record int64
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s record %d: %s", e.Source, e.Record, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

type limited struct {
	src Source
	n   int
}

// Sample bounds src to its first n documents. n <= 0 returns src unchanged.
func Sample(src Source, n int) Source {
	if n <= 0 {
		return src
	}
	return &limited{src: src, n: n}
}

func (l *limited) Each(ctx context.Context, fn func(Document) error) error {
	seen := 0
	err := l.src.Each(ctx, func(doc Document) error {
		if seen >= l.n {
			return ErrStop
		}
		seen++
		return fn(doc)
	})
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

type multi []Source

// Concat yields every document of each source in turn.
func Concat(sources ...Source) Source {
	return multi(sources)
}

func (m multi) Each(ctx context.Context, fn func(Document) error) error {
	for _, src := range m {
		if err := src.Each(ctx, fn); err != nil {
			return err
		}
	}
	return nil
}

// Open picks a source for each path: directories are read as HTML pages, .csv files as
// title/content tables, .db/.sqlite files as crawled pages databases and anything else as
// one document per line.
func Open(paths ...string) (Source, error) {
	if len(paths) == 0 {
		return nil, errors.New("corpus: no input paths")
	}

	sources := make([]Source, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open corpus %s: %w", path, err)
		}
		if info.IsDir() {
			sources = append(sources, NewHTMLSource(path))
			continue
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			sources = append(sources, NewCSVSource(path))
		case ".db", ".sqlite", ".sqlite3":
			sources = append(sources, NewPagesSource(path, 0))
		default:
			sources = append(sources, NewTextSource(path))
		}
	}

	if len(sources) == 1 {
		return sources[0], nil
	}
	return Concat(sources...), nil
}

func coerce(fields ...*string) bool {
	ok := false
	for _, f := range fields {
		*f = strings.ToValidUTF8(*f, " ")
		if strings.TrimSpace(*f) != "" {
			ok = true
		}
	}
	return ok
}
