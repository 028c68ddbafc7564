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

	"github.com/lukasdietrich/newsletter/internal/shell"
)

type shellCommand struct {
	Shell *shell.Shell
}

func injectShell() (command, func(), error) {
	return newShellCommand()
}

func (*shellCommand) flags(*pflag.FlagSet) {}

func (c *shellCommand) run(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return errArgs
	}

	return c.Shell.Run(ctx)
}
