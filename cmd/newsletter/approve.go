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

	"github.com/lukasdietrich/newsletter/internal/lock"
	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/review"
)

type approveCommand struct {
	Loop *review.Loop
	Lock *lock.Lock
}

func injectApprove() (command, func(), error) {
	return newApproveCommand()
}

func (*approveCommand) flags(*pflag.FlagSet) {}

func (c *approveCommand) run(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return errArgs
	}

	return c.Lock.With(ctx, func(ctx context.Context) error {
		terminal, err := review.OpenTerminal()
		if err != nil {
			return err
		}

		defer func() {
			if err := terminal.Close(); err != nil {
				log.WarnContext(ctx).Err(err).Msg("could not restore terminal")
			}
		}()

		return c.Loop.Run(ctx, terminal)
	})
}
