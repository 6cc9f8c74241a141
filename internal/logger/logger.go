// Package logger builds charmbracelet/log loggers shared by the indexer and the query server.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	mu        sync.RWMutex
	formatter = log.TextFormatter
)

// New creates a prefixed logger that respects the global level and format set by Setup.
func New(prefix string) *log.Logger {
	return newLogger(os.Stderr, prefix)
}

func newLogger(w io.Writer, prefix string) *log.Logger {
	mu.RLock()
	f := formatter
	mu.RUnlock()

	return log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		ReportCaller:    false,
		ReportTimestamp: true,
		Formatter:       f,
		Level:           log.GetLevel(),
	})
}

// Setup applies the configured level and format to the global logger and to every
// logger New creates afterwards. Unknown levels fall back to info.
func Setup(level string, json bool) {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}

	f := log.TextFormatter
	if json {
		f = log.JSONFormatter
	}
	mu.Lock()
	formatter = f
	mu.Unlock()

	log.SetLevel(lvl)
	log.SetReportTimestamp(true)
	log.SetFormatter(f)
}
