// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package log is a thin facade over a global zerolog logger. Events created with a context carry
// the fields added by WithSubscriber, WithOrigin and WithCommand.
package log

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger. It is replaced by Setup.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Setup replaces the global Logger. Human readable console output is used, if pretty is set.
func Setup(w io.Writer, level string, pretty bool) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	zerolog.SetGlobalLevel(parsed)
	Logger = zerolog.New(w).With().Timestamp().Logger()

	return nil
}

func Trace() *zerolog.Event { return Logger.Trace() }
func Debug() *zerolog.Event { return Logger.Debug() }
func Info() *zerolog.Event  { return Logger.Info() }
func Warn() *zerolog.Event  { return Logger.Warn() }
func Error() *zerolog.Event { return Logger.Error() }

// Fatal events exit the process after they are written.
func Fatal() *zerolog.Event { return Logger.Fatal() }

func TraceContext(ctx context.Context) *zerolog.Event { return withFields(ctx, Trace()) }
func DebugContext(ctx context.Context) *zerolog.Event { return withFields(ctx, Debug()) }
func InfoContext(ctx context.Context) *zerolog.Event  { return withFields(ctx, Info()) }
func WarnContext(ctx context.Context) *zerolog.Event  { return withFields(ctx, Warn()) }
func ErrorContext(ctx context.Context) *zerolog.Event { return withFields(ctx, Error()) }
func FatalContext(ctx context.Context) *zerolog.Event { return withFields(ctx, Fatal()) }
