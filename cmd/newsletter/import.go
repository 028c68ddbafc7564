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
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/lukasdietrich/newsletter/internal/lock"
	"github.com/lukasdietrich/newsletter/internal/migration"
)

type importCommand struct {
	Importer *migration.Importer
	Fs       afero.Fs
	Lock     *lock.Lock

	source  string            `wire:"-"`
	preview bool              `wire:"-"`
	limit   int               `wire:"-"`
	columns map[string]string `wire:"-"`
}

func injectImport() (command, func(), error) {
	return newImportCommand()
}

func (c *importCommand) flags(flags *pflag.FlagSet) {
	names := make([]string, len(migration.Sources))
	for i, source := range migration.Sources {
		names[i] = strings.ToLower(string(source))
	}

	flags.StringVarP(&c.source, "source", "s", "generic", "Source of the export ("+strings.Join(names, ", ")+")")
	flags.BoolVarP(&c.preview, "preview", "p", false, "Show the parsed subscribers without importing")
	flags.IntVarP(&c.limit, "limit", "l", 10, "Number of subscribers shown in the preview")
	flags.StringToStringVar(&c.columns, "column", nil,
		"Override a column of the source, e.g. --column email=Mail (email, name, status, date, tags, delimiter)")
}

func (c *importCommand) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errArgs
	}

	source, err := migration.ParseSource(c.source)
	if err != nil {
		return err
	}

	overrides, err := migration.OverridesFromMap(c.columns)
	if err != nil {
		return err
	}

	file, err := c.Fs.Open(args[0])
	if err != nil {
		return err
	}

	defer file.Close()

	parsed, err := migration.Parse(source, file, overrides)
	if err != nil {
		return fmt.Errorf("could not parse %q: %w", args[0], err)
	}

	if c.preview {
		renderPreview(parsed, c.limit)
		return nil
	}

	return c.Lock.With(ctx, func(ctx context.Context) error {
		result, err := c.Importer.Import(ctx, source, parsed)
		if err != nil {
			return err
		}

		fmt.Printf("Processed %d, imported %d, skipped %d duplicates, %d errors.\n",
			result.TotalProcessed, result.SuccessfullyImported, result.SkippedDuplicates, len(result.Errors))

		for _, message := range result.Errors {
			fmt.Printf("  %s\n", message)
		}

		return nil
	})
}

func renderPreview(parsed []migration.ImportedSubscriber, limit int) {
	tw := newTable(os.Stdout)
	tw.SetTitle(fmt.Sprintf("Preview of %d subscribers", len(parsed)))
	tw.AppendHeader(table.Row{"Row", "Email", "Name", "Status", "Subscribed", "Tags"})

	for _, imported := range migration.Preview(parsed, limit) {
		tw.AppendRow(table.Row{
			imported.Row,
			imported.Email,
			imported.Name,
			imported.Status,
			formatTime(imported.SubscribedAt),
			strings.Join(imported.Tags, ", "),
		})
	}

	tw.Render()
}
