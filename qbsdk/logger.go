/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package qbsdk

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the interface for SDK logging. Any logger that implements Printf
// (such as the standard library's *log.Logger or a *zerolog.Logger) can be used.
type Logger interface {
	Printf(format string, v ...any)
}

// NewLogger returns the default zerolog console logger. zerolog's Printf
// writes at debug level, so SDK trace output only appears when debug is set.
func NewLogger(debug bool) Logger {
	return NewLoggerTo(os.Stderr, debug)
}

// NewLoggerTo is NewLogger writing to w.
func NewLoggerTo(w io.Writer, debug bool) Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	l := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Str("sdk", "quickblox").
		Logger()
	return &l
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// NopLogger discards everything.
func NopLogger() Logger { return nopLogger{} }
