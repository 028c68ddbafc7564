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
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/newsletter/internal/plugin"
)

type pluginCommand struct {
	Plugins *plugin.Manager
}

func injectPlugin() (command, func(), error) {
	return newPluginCommand()
}

func (*pluginCommand) flags(*pflag.FlagSet) {}

func (c *pluginCommand) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errArgs
	}

	switch action, rest := args[0], args[1:]; action {
	case "list":
		return c.list()
	case "info":
		return withName(rest, c.info)
	case "enable":
		return withName(rest, func(name string) error { return c.setEnabled(name, true) })
	case "disable":
		return withName(rest, func(name string) error { return c.setEnabled(name, false) })
	case "run":
		if len(rest) == 0 {
			return errArgs
		}

		return c.execute(ctx, rest[0], rest[1:])
	default:
		return fmt.Errorf("unknown plugin action %q", action)
	}
}

func withName(args []string, fn func(string) error) error {
	if len(args) != 1 {
		return errArgs
	}

	return fn(args[0])
}

func (c *pluginCommand) list() error {
	tw := newTable(os.Stdout)
	tw.AppendHeader(table.Row{"Name", "Version", "Enabled", "Description"})

	for _, metadata := range c.Plugins.List() {
		tw.AppendRow(table.Row{metadata.Name, metadata.Version, c.Plugins.Enabled(metadata.Name), metadata.Description})
	}

	tw.Render()
	return nil
}

func (c *pluginCommand) info(name string) error {
	p, err := c.Plugins.Get(name)
	if err != nil {
		return err
	}

	metadata := p.Metadata()

	var hooks []string
	for hook := plugin.PreFetch; hook <= plugin.CustomTemplate; hook++ {
		if p.HandlesHook(hook) {
			hooks = append(hooks, hook.String())
		}
	}

	tw := newTable(os.Stdout)
	tw.SetTitle(metadata.Name)
	tw.AppendRows([]table.Row{
		{"Version", metadata.Version},
		{"Author", metadata.Author},
		{"Description", metadata.Description},
		{"License", orDash(metadata.License)},
		{"Homepage", orDash(metadata.Homepage)},
		{"Keywords", orDash(strings.Join(metadata.Keywords, ", "))},
		{"Enabled", c.Plugins.Enabled(name)},
		{"Hooks", orDash(strings.Join(hooks, ", "))},
		{"Commands", orDash(strings.Join(p.Commands(), ", "))},
		{"Templates", orDash(strings.Join(p.Templates(), ", "))},
	})
	tw.Render()

	return nil
}

// setEnabled persists "newsletter.plugins.<name>.enabled" in the configuration file. Only the
// contents of the file are written back, defaults and environment stay untouched.
func (c *pluginCommand) setEnabled(name string, enabled bool) error {
	if _, err := c.Plugins.Get(name); err != nil {
		return err
	}

	filename := viper.ConfigFileUsed()
	if filename == "" {
		return errors.New("no configuration file in use")
	}

	file := viper.New()
	file.SetConfigFile(filename)
	file.SetConfigType("toml")

	if err := file.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	file.Set(fmt.Sprintf("newsletter.plugins.%s.enabled", name), enabled)

	if err := file.WriteConfigAs(filename); err != nil {
		return fmt.Errorf("could not update %q: %w", filename, err)
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}

	fmt.Printf("Plugin %s %s in %s.\n", name, state, filename)
	return nil
}

func (c *pluginCommand) execute(ctx context.Context, command string, args []string) error {
	result, err := c.Plugins.ExecuteCommand(ctx, command, args)
	if err != nil {
		return err
	}

	if result.Message != "" {
		fmt.Println(result.Message)
	}

	keys := make([]string, 0, len(result.Data))
	for key := range result.Data {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		fmt.Printf("  %s: %v\n", key, result.Data[key])
	}

	if !result.Success {
		return fmt.Errorf("plugin command %q failed", command)
	}

	return nil
}
