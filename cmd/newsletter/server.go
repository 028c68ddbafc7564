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

	"github.com/spf13/pflag"

	"github.com/lukasdietrich/newsletter/internal/api"
	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/ingest"
	"github.com/lukasdietrich/newsletter/internal/log"
)

type serverCommand struct {
	Server   *api.Server
	Settings *config.Settings
	Pipeline *ingest.Pipeline

	fetchSchedule string `wire:"-"`
}

func injectServer() (command, func(), error) {
	return newServerCommand()
}

func (c *serverCommand) flags(flags *pflag.FlagSet) {
	flags.StringVar(&c.fetchSchedule, "fetch-schedule", "",
		`Fetch subscribers periodically, e.g. "@every 30m" or "0 * * * *"`)
}

func (c *serverCommand) run(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return errArgs
	}

	if c.fetchSchedule != "" {
		scheduler, err := api.NewScheduler(c.fetchSchedule, "fetch-subscribers", c.fetch)
		if err != nil {
			return err
		}

		scheduler.Start(ctx)
	}

	return c.Server.ListenAndServe(ctx)
}

func (c *serverCommand) fetch(ctx context.Context) error {
	server, password, err := c.Settings.RequireIMAP()
	if err != nil {
		return err
	}

	result, err := c.Pipeline.Run(ctx, server, password, nil)
	if err != nil {
		return err
	}

	log.InfoContext(ctx).
		Int("fetched", result.Fetched).
		Int("added", len(result.Added)).
		Msg("scheduled fetch finished")

	return nil
}
