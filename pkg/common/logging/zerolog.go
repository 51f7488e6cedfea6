/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package logging provides a zerolog backed logger provider. Install it with log.Initialize before the first log
// output; module levels set with log.SetLevel still apply.
package logging

import (
	"io"
	"time"

	spilog "github.com/hyperledger/aries-framework-go/spi/log"
	"github.com/rs/zerolog"
)

const moduleField = "module"

// Format selects how log lines are rendered.
type Format string

const (
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
	// FormatConsole writes human readable colored lines.
	FormatConsole Format = "console"
)

// Provider is a spi/log.LoggerProvider writing through zerolog.
type Provider struct {
	base zerolog.Logger
}

// NewProvider returns a provider writing to w in format.
func NewProvider(w io.Writer, format Format) *Provider {
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return &Provider{base: zerolog.New(w).With().Timestamp().Logger()}
}

// GetLogger returns a logger tagging every line with module.
func (p *Provider) GetLogger(module string) spilog.Logger {
	return &Logger{zl: p.base.With().Str(moduleField, module).Logger()}
}

// Logger adapts a zerolog.Logger to spi/log.Logger.
type Logger struct {
	zl zerolog.Logger
}

// Panicf logs and panics.
func (l *Logger) Panicf(msg string, args ...interface{}) {
	l.zl.Panic().Msgf(msg, args...)
}

// Fatalf logs and exits.
func (l *Logger) Fatalf(msg string, args ...interface{}) {
	l.zl.Fatal().Msgf(msg, args...)
}

// Errorf logs at error level.
func (l *Logger) Errorf(msg string, args ...interface{}) {
	l.zl.Error().Msgf(msg, args...)
}

// Warnf logs at warn level.
func (l *Logger) Warnf(msg string, args ...interface{}) {
	l.zl.Warn().Msgf(msg, args...)
}

// Infof logs at info level.
func (l *Logger) Infof(msg string, args ...interface{}) {
	l.zl.Info().Msgf(msg, args...)
}

// Debugf logs at debug level.
func (l *Logger) Debugf(msg string, args ...interface{}) {
	l.zl.Debug().Msgf(msg, args...)
}
