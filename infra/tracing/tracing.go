// Package tracing wires up the node's structured logger. It mirrors the
// teacher's use of erigon-lib's package-level log.Info/Warn/Error calls
// rather than threading a *Logger value through every function.
package tracing

import (
	"os"

	"github.com/erigontech/erigon-lib/log/v3"
)

// Init configures the global logger at the given level ("debug", "info",
// "warn", "error"), writing to stderr. Called once at process startup by
// every cmd/ main before anything else logs.
func Init(level string) error {
	lvl, err := log.LvlFromString(level)
	if err != nil {
		return err
	}
	handler := log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat(false)))
	log.Root().SetHandler(handler)
	return nil
}

// Info logs at info level with structured key/value pairs, e.g.
// tracing.Info("importing block", "number", n).
func Info(msg string, ctx ...interface{}) { log.Info(msg, ctx...) }

// Warn logs at warn level.
func Warn(msg string, ctx ...interface{}) { log.Warn(msg, ctx...) }

// Error logs at error level.
func Error(msg string, ctx ...interface{}) { log.Error(msg, ctx...) }

// Debug logs at debug level.
func Debug(msg string, ctx ...interface{}) { log.Debug(msg, ctx...) }
