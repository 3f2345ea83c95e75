// Package logger holds the process-wide zerolog logger gnark-air components
// report through.
//
// Circuit compilation is chatty at Info level (layout sizes, artifact
// hashes); under `go test` the logger defaults to a no-op unless the build
// carries the debug tag, so test output stays readable.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/consensys/gnark-air/debug"
)

var root zerolog.Logger

func init() {
	w := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	root = zerolog.New(w).With().Timestamp().Logger()

	if !debug.Debug && strings.HasSuffix(os.Args[0], ".test") {
		root = zerolog.Nop()
	}
}

// Logger returns the shared logger. Components add their own context fields.
func Logger() zerolog.Logger {
	return root
}

// SetOutput redirects the shared logger.
func SetOutput(w io.Writer) {
	root = root.Output(w)
}

// Set replaces the shared logger wholesale.
func Set(l zerolog.Logger) {
	root = l
}

// Disable silences the shared logger.
func Disable() {
	root = zerolog.Nop()
}
