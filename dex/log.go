// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
)

// Logger is the interface used throughout the engine's packages. It is
// satisfied by *btclog.Logger.
type Logger = btclog.Logger

// LoggerMaker constructs per-subsystem loggers backed by a single
// btclog.Backend, mirroring how a dcrdex-style server wires one log file to
// many named subsystems (e.g. "AUCT", "SETL", "REGY", "COMM").
type LoggerMaker struct {
	backend *btclog.Backend
	level   btclog.Level
}

// NewLoggerMaker creates a LoggerMaker writing to w at the given level name
// ("trace", "debug", "info", "warn", "error", "critical", "off").
func NewLoggerMaker(w io.Writer, levelName string) (*LoggerMaker, error) {
	if w == nil {
		w = os.Stdout
	}
	lvl, ok := btclog.LevelFromString(levelName)
	if !ok {
		return nil, NewError(MalformedPayload, "unknown log level "+levelName)
	}
	return &LoggerMaker{
		backend: btclog.NewBackend(w),
		level:   lvl,
	}, nil
}

// Logger returns a Logger for the named subsystem, configured at the
// LoggerMaker's level.
func (lm *LoggerMaker) Logger(subsystem string) Logger {
	l := lm.backend.Logger(subsystem)
	l.SetLevel(lm.level)
	return l
}
