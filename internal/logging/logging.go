// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup points the global logger at a human-readable console writer on
// stderr and applies the requested verbosity. Debug enables the driver's
// refresh and bus tracing.
func Setup(debug bool, extra ...io.Writer) {
	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}
	writers = append(writers, extra...)

	log.Logger = log.Output(io.MultiWriter(writers...)).
		With().Timestamp().Logger()

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
