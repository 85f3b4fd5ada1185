// Package logging configures the process-wide logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Init installs a logger writing to w at the given level as the default
// logger. Verbose forces debug level and caller reporting.
func Init(w io.Writer, level string, verbose bool) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	if verbose {
		lvl = log.DebugLevel
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    verbose,
		TimeFormat:      time.RFC3339,
		Level:           lvl,
	})
	log.SetDefault(logger)
	return logger
}

// Discard silences the default logger. Used by tests.
func Discard() {
	log.SetDefault(log.New(io.Discard))
}
