package corpus

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/gocarina/gocsv"
)

func init() {
	// Article dumps carry multi-line quoted bodies and stray quotes.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.LazyQuotes = true
		r.FieldsPerRecord = -1
		return r
	})
}

// articleRow maps the columns the indexer needs; any other columns are ignored.
type articleRow struct {
	Title   string `csv:"title"`
	Content string `csv:"content"`
	Body    string `csv:"body"`
}

// CSVSource reads documents from a CSV file with a header row naming a title column and
// a content (or body) column.
type CSVSource struct {
	path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) Each(ctx context.Context, fn func(Document) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open csv %s: %w", s.path, err)
	}
	defer f.Close()

	rows := make(chan articleRow, 64)
	errc := make(chan error, 1)
	go func() {
		errc <- gocsv.UnmarshalToChan(f, rows)
	}()

	// gocsv closes rows when the file is exhausted. Stopping early must keep draining,
	// otherwise the decoder goroutine blocks on send forever.
	drain := func() {
		for range rows {
		}
	}

	var record int64
	for row := range rows {
		record++
		if err := ctx.Err(); err != nil {
			drain()
			return err
		}

		body := row.Content
		if body == "" {
			body = row.Body
		}
		if !coerce(&row.Title, &body) {
			log.Debug("Coerced csv record", "err", &MalformedRecordError{Source: s.path, Record: record, Reason: "empty title and content"})
		}

		if err := fn(Document{Title: row.Title, Body: body}); err != nil {
			drain()
			return err
		}
	}

	if err := <-errc; err != nil {
		return fmt.Errorf("failed to decode csv %s: %w", s.path, err)
	}
	return nil
}
