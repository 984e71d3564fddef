// Package logging installs the process-wide zerolog logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup replaces log.Logger. format "json" writes JSON lines to stdout; any
// other value uses the human-friendly console writer on stderr. verbose
// enables debug-level output (per-row decisions, batch cutoffs).
func Setup(verbose bool, format string) zerolog.Logger {
	var w io.Writer = zerolog.NewConsoleWriter()
	if format == "json" {
		w = os.Stdout
	}
	return install(w, verbose)
}

func install(w io.Writer, verbose bool) zerolog.Logger {
	l := zerolog.New(w).
		With().
		Timestamp().
		Str("app", "csvharvest").
		Logger()

	if verbose {
		log.Logger = l.Level(zerolog.DebugLevel)
	} else {
		log.Logger = l.Level(zerolog.InfoLevel)
	}
	return log.Logger
}
