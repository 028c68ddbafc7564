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
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/pflag"

	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/store"
)

type statusCommand struct {
	Settings *config.Settings
	Store    *store.Store
}

func injectStatus() (command, func(), error) {
	return newStatusCommand()
}

func (*statusCommand) flags(*pflag.FlagSet) {}

func (c *statusCommand) run(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return errArgs
	}

	counts, err := c.Store.Stats(ctx)
	if err != nil {
		return err
	}

	tw := newTable(os.Stdout)
	tw.SetTitle("Newsletter")
	tw.AppendRows([]table.Row{
		{"Enabled", c.Settings.Enabled},
		{"Name", c.Settings.DisplayName()},
		{"Blog", orDash(c.Settings.BlogURL)},
		{"Subscribe email", orDash(c.Settings.SubscribeEmail)},
		{"Transport", c.Settings.Transport},
		{"Rate limit", c.Settings.RateLimit},
	})
	tw.AppendSeparator()
	tw.AppendRows([]table.Row{
		{"IMAP", serverStatus(c.Settings.IMAP)},
		{"IMAP password", passwordStatus(c.Settings.IMAPPassword)},
		{"SMTP", serverStatus(c.Settings.SMTP)},
		{"SMTP password", passwordStatus(c.Settings.SMTPPassword)},
	})
	tw.AppendSeparator()
	tw.AppendRows([]table.Row{
		{"Subscribers", counts.Total},
		{"Pending", counts.Pending},
		{"Approved", counts.Approved},
		{"Declined", counts.Declined},
	})
	tw.Render()

	return nil
}

func serverStatus(server *config.MailServer) string {
	if server == nil {
		return "not configured"
	}

	tls := "plain"
	if server.TLS() {
		tls = "tls"
	}

	return server.Username + " @ " + server.Address() + " (" + tls + ")"
}

func passwordStatus(password string) string {
	if password == "" {
		return "missing"
	}

	return "set"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
