package corpus

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

const maxLineSize = 16 * 1024 * 1024

// TextSource reads one document per non-blank line, the layout produced by flattening an
// article table into alternating title and content lines.
type TextSource struct {
	path string
}

func NewTextSource(path string) *TextSource {
	return &TextSource{path: path}
}

func (s *TextSource) Each(ctx context.Context, fn func(Document) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open text corpus %s: %w", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		body := line
		coerce(&body)
		if err := fn(Document{Body: body}); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read text corpus %s: %w", s.path, err)
	}
	return nil
}
