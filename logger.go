// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Logger receives diagnostic output from the engine. Implementations are
// expected to be safe for concurrent use.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warning(msg string, args ...any)
	Error(msg string, args ...any)
}

type zerologLogger struct {
	logger zerolog.Logger
}

// NewDefaultLogger returns a structured logger writing to stderr.
func NewDefaultLogger() Logger {
	return &zerologLogger{
		logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
	}
}

// NewZerologLogger adapts an existing zerolog logger so hosts can route the
// engine's output into their own sink.
func NewZerologLogger(logger zerolog.Logger) Logger {
	return &zerologLogger{logger: logger}
}

func (l *zerologLogger) Debug(msg string, args ...any) {
	l.logger.Debug().Msg(fmt.Sprintf(msg, args...))
}

func (l *zerologLogger) Info(msg string, args ...any) {
	l.logger.Info().Msg(fmt.Sprintf(msg, args...))
}

func (l *zerologLogger) Warning(msg string, args ...any) {
	l.logger.Warn().Msg(fmt.Sprintf(msg, args...))
}

func (l *zerologLogger) Error(msg string, args ...any) {
	l.logger.Error().Msg(fmt.Sprintf(msg, args...))
}

// NoopLogger discards everything. Useful in tests.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any)   {}
func (NoopLogger) Info(string, ...any)    {}
func (NoopLogger) Warning(string, ...any) {}
func (NoopLogger) Error(string, ...any)   {}
