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

	"github.com/spf13/pflag"

	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/ingest"
	"github.com/lukasdietrich/newsletter/internal/lock"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/shell"
)

type fetchCommand struct {
	Settings *config.Settings
	Pipeline *ingest.Pipeline
	Lock     *lock.Lock

	interactive bool `wire:"-"`
}

func injectFetch() (command, func(), error) {
	return newFetchCommand()
}

func (c *fetchCommand) flags(flags *pflag.FlagSet) {
	flags.BoolVarP(&c.interactive, "interactive", "i", false, "Pick the subscribers to add")
}

func (c *fetchCommand) run(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return errArgs
	}

	server, password, err := c.Settings.RequireIMAP()
	if err != nil {
		return err
	}

	var selectFn ingest.SelectFunc
	if c.interactive {
		selectFn = selectCandidates
	}

	return c.Lock.With(ctx, func(ctx context.Context) error {
		result, err := c.Pipeline.Run(ctx, server, password, selectFn)
		if err != nil {
			return err
		}

		fmt.Printf("Fetched %d emails with %d subscription requests.\n", result.Fetched, len(result.Candidates))
		fmt.Printf("Added %d, already known %d, failed %d.\n", len(result.Added), len(result.Existing), len(result.Failed))

		if len(result.Added) > 0 {
			renderSubscribers(os.Stdout, result.Added)
		}

		return nil
	})
}

func selectCandidates(_ context.Context, candidates []models.SubscriberEntity) ([]models.SubscriberEntity, error) {
	return shell.FuzzySelector{}.Multi(candidates)
}
