package corpus

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"
)

const defaultPageBatch = 1000

// PagesSource reads crawled pages (id, title, description, content) from a sqlite database,
// in id order and in fixed-size batches so the whole table is never held in memory.
type PagesSource struct {
	path      string
	batchSize int
}

func NewPagesSource(path string, batchSize int) *PagesSource {
	if batchSize <= 0 {
		batchSize = defaultPageBatch
	}
	return &PagesSource{path: path, batchSize: batchSize}
}

type page struct {
	ID          int64
	Title       sql.NullString
	Description sql.NullString
	Content     sql.NullString
}

func (s *PagesSource) Each(ctx context.Context, fn func(Document) error) error {
	db, err := sql.Open("sqlite3", "file:"+s.path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open pages database: %w", err)
	}
	defer db.Close()

	var afterID int64
	for {
		pages, err := s.pagesAfterID(ctx, db, afterID)
		if err != nil {
			return err
		}
		if len(pages) == 0 {
			return nil
		}

		for _, p := range pages {
			doc, ok := p.document()
			if !ok {
				log.Debug("Coerced page record", "err", &MalformedRecordError{Source: s.path, Record: p.ID, Reason: "null title and content"})
			}
			if err := fn(doc); err != nil {
				return err
			}
		}
		afterID = pages[len(pages)-1].ID
	}
}

func (s *PagesSource) pagesAfterID(ctx context.Context, db *sql.DB, afterID int64) ([]page, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, title, description, content FROM pages WHERE id > ? ORDER BY id LIMIT ?",
		afterID, s.batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []page
	for rows.Next() {
		var p page
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Content); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// document coerces NULL columns to empty strings. The description is folded into the body
// ahead of the content.
func (p page) document() (Document, bool) {
	title := p.Title.String
	body := p.Content.String
	if p.Description.String != "" {
		body = p.Description.String + " " + body
	}
	ok := coerce(&title, &body)
	return Document{Title: title, Body: body}, ok
}
