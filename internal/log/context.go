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

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type fieldsKey struct{}

// fields are the values carried by a context. Empty values are not logged.
type fields struct {
	subscriber string
	origin     string
	command    string
}

func fieldsFrom(ctx context.Context) fields {
	f, _ := ctx.Value(fieldsKey{}).(fields)
	return f
}

func withValue(ctx context.Context, set func(*fields)) context.Context {
	f := fieldsFrom(ctx)
	set(&f)

	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithSubscriber adds the email of the subscriber being processed.
func WithSubscriber(ctx context.Context, email string) context.Context {
	return withValue(ctx, func(f *fields) { f.subscriber = email })
}

// WithOrigin adds where the work came from, e.g. "imap", "api" or "migration".
func WithOrigin(ctx context.Context, origin string) context.Context {
	return withValue(ctx, func(f *fields) { f.origin = origin })
}

// WithCommand adds the name of the running command.
func WithCommand(ctx context.Context, command string) context.Context {
	return withValue(ctx, func(f *fields) { f.command = command })
}

func withFields(ctx context.Context, event *zerolog.Event) *zerolog.Event {
	f := fieldsFrom(ctx)

	if f.subscriber != "" {
		event.Str("subscriber", f.subscriber)
	}

	if f.origin != "" {
		event.Str("origin", f.origin)
	}

	if f.command != "" {
		event.Str("command", f.command)
	}

	return event
}
