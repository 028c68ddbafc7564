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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/lukasdietrich/newsletter/internal/export"
	"github.com/lukasdietrich/newsletter/internal/lock"
	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/mails"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/shell"
	"github.com/lukasdietrich/newsletter/internal/store"
)

func parseStatusFilter(raw string) (*models.SubscriberStatus, error) {
	if raw == "" || raw == "all" {
		return nil, nil
	}

	status, err := models.ParseStatus(raw)
	if err != nil {
		return nil, err
	}

	return &status, nil
}

type listCommand struct {
	Store *store.Store

	status string `wire:"-"`
}

func injectList() (command, func(), error) {
	return newListCommand()
}

func (c *listCommand) flags(flags *pflag.FlagSet) {
	flags.StringVarP(&c.status, "status", "s", "", "Only list subscribers with a status (pending, approved, declined)")
}

func (c *listCommand) run(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return errArgs
	}

	status, err := parseStatusFilter(c.status)
	if err != nil {
		return err
	}

	subscribers, err := c.Store.List(ctx, status)
	if err != nil {
		return err
	}

	renderSubscribers(os.Stdout, subscribers)
	return nil
}

type removeCommand struct {
	Store *store.Store
	Lock  *lock.Lock

	force bool `wire:"-"`
}

func injectRemove() (command, func(), error) {
	return newRemoveCommand()
}

func (c *removeCommand) flags(flags *pflag.FlagSet) {
	flags.BoolVarP(&c.force, "force", "f", false, "Do not ask for confirmation")
}

func (c *removeCommand) run(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return errArgs
	}

	return c.Lock.With(ctx, func(ctx context.Context) error {
		var email string

		if len(args) == 1 {
			email = mails.NormalizeAddress(args[0])
		} else {
			subscribers, err := c.Store.List(ctx, nil)
			if err != nil {
				return err
			}

			subscriber, err := shell.FuzzySelector{}.One(subscribers)
			if err != nil {
				return err
			}

			email = subscriber.Email
		}

		if !c.force {
			ok, err := confirm(fmt.Sprintf("Remove %s permanently?", email))
			if err != nil || !ok {
				return err
			}
		}

		removed, err := c.Store.Remove(log.WithSubscriber(ctx, email), email)
		if err != nil {
			return err
		}

		if !removed {
			return fmt.Errorf("%w: %q", store.ErrNotFound, email)
		}

		fmt.Printf("Removed %s.\n", email)
		return nil
	})
}

type exportCommand struct {
	Store *store.Store
	Fs    afero.Fs

	format string `wire:"-"`
	status string `wire:"-"`
	output string `wire:"-"`
}

func injectExport() (command, func(), error) {
	return newExportCommand()
}

func (c *exportCommand) flags(flags *pflag.FlagSet) {
	flags.StringVarP(&c.format, "format", "f", "csv", "Export format (csv, json, xlsx)")
	flags.StringVarP(&c.status, "status", "s", "", "Only export subscribers with a status")
	flags.StringVarP(&c.output, "output", "o", "", "Output file, stdout if empty")
}

func (c *exportCommand) run(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return errArgs
	}

	format, err := export.ParseFormat(c.format)
	if err != nil {
		return err
	}

	status, err := parseStatusFilter(c.status)
	if err != nil {
		return err
	}

	subscribers, err := c.Store.List(ctx, status)
	if err != nil {
		return err
	}

	if c.output == "" || c.output == "-" {
		return export.Write(os.Stdout, format, subscribers)
	}

	if err := export.WriteFile(c.Fs, c.output, format, subscribers); err != nil {
		return err
	}

	log.InfoContext(ctx).
		Str("filename", c.output).
		Str("format", string(format)).
		Int("count", len(subscribers)).
		Msg("subscribers exported")

	return nil
}
