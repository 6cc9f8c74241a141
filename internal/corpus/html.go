package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
)

// maxContentSize caps the extracted body of a single page.
const maxContentSize = 1000000

// HTMLSource reads every .html/.htm file below a directory, in lexical path order.
type HTMLSource struct {
	root string
}

func NewHTMLSource(root string) *HTMLSource {
	return &HTMLSource{root: root}
}

func (s *HTMLSource) Each(ctx context.Context, fn func(Document) error) error {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".html", ".htm":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", s.root, err)
	}
	sort.Strings(paths)

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := parseHTMLFile(path)
		if err != nil {
			log.Debug("Coerced html record", "err", &MalformedRecordError{Source: path, Record: int64(i + 1), Reason: err.Error()})
			doc = Document{}
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func parseHTMLFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	page, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		Title: strings.TrimSpace(page.Find("title").First().Text()),
		Body:  extractContent(page),
	}
	coerce(&doc.Title, &doc.Body)
	return doc, nil
}

// extractContent prefers semantic containers, then common content selectors, then paragraphs,
// and finally the whole body.
func extractContent(page *goquery.Document) string {
	contentDoc := page.Clone()
	contentDoc.Find("script, style, nav, header, footer, aside, iframe, noscript, form, button").Remove()

	var content string
	if article := contentDoc.Find("article").First(); article.Length() > 0 {
		content = article.Text()
	}

	if len(strings.TrimSpace(content)) < 100 {
		if main := contentDoc.Find("main").First(); main.Length() > 0 {
			content = main.Text()
		}
	}

	if len(strings.TrimSpace(content)) < 100 {
		for _, selector := range []string{
			"#content", ".content", "#main-content", ".main-content",
			".entry-content", ".post-content", ".article-content", "[role='main']",
		} {
			if elem := contentDoc.Find(selector).First(); elem.Length() > 0 {
				text := elem.Text()
				if len(strings.TrimSpace(text)) > len(strings.TrimSpace(content)) {
					content = text
				}
			}
		}
	}

	if len(strings.TrimSpace(content)) < 100 {
		var paragraphs []string
		contentDoc.Find("p").Each(func(i int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) > 0 {
			content = strings.Join(paragraphs, " ")
		}
	}

	if strings.TrimSpace(content) == "" {
		content = contentDoc.Find("body").Text()
	}

	content = strings.Join(strings.Fields(content), " ")
	if len(content) > maxContentSize {
		content = content[:maxContentSize]
	}
	return content
}
