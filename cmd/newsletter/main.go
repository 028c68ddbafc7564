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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/newsletter/internal/api"
	"github.com/lukasdietrich/newsletter/internal/log"
)

const usageText = `
Usage:
  newsletter [OPTIONS] COMMAND [ARGS]

  Collect, review and mail the subscribers of a blog.

Version:
  %s

Commands:
%s
Options:
%s
`

var (
	// Version is set at compile-time.
	Version string
)

func init() {
	viper.SetDefault("log.level", "info")
}

// command is a single cli command. Flags are registered before the arguments are parsed.
type command interface {
	flags(*pflag.FlagSet)
	run(ctx context.Context, args []string) error
}

type commandDef struct {
	name  string
	usage string
	args  string
	build func() (command, func(), error)
}

var commands = []commandDef{
	{"status", "Show the resolved configuration and subscriber counts", "", injectStatus},
	{"fetch-subscribers", "Fetch subscription requests from the mailbox", "", injectFetch},
	{"approve", "Review pending subscribers interactively", "", injectApprove},
	{"list", "List subscribers", "", injectList},
	{"remove", "Remove a subscriber", "[EMAIL]", injectRemove},
	{"export", "Export subscribers as csv, json or xlsx", "", injectExport},
	{"import", "Import subscribers from another newsletter service", "FILE", injectImport},
	{"send-latest", "Send the latest blog post to all approved subscribers", "", injectNewsletter(sendLatest)},
	{"send-custom", "Send a custom newsletter to all approved subscribers", "", injectNewsletter(sendCustom)},
	{"draft-latest", "Preview the newsletter of the latest blog post", "", injectNewsletter(draftLatest)},
	{"draft-custom", "Preview a custom newsletter", "", injectNewsletter(draftCustom)},
	{"test", "Send a test newsletter to a single address", "EMAIL", injectNewsletter(sendTest)},
	{"plugin", "List, inspect, enable, disable or run plugins", "list|info|enable|disable|run", injectPlugin},
	{"api-server", "Serve the http api", "", injectServer},
	{"shell", "Start an interactive administration shell", "", injectShell},
}

func main() {
	var configFilename string

	flags := pflag.NewFlagSet("newsletter", pflag.ContinueOnError)
	flags.StringVarP(&configFilename, "config", "c", "blogr.toml", "Path to a configuration file")
	flags.SetInterspersed(false)
	flags.Usage = printUsage(flags)

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	def, ok := lookupCommand(flags.Arg(0))
	if !ok {
		flags.Usage()
		os.Exit(2)
	}

	setupConfig(configFilename)
	setupLogger()
	printConfig()

	if err := runCommand(def, flags.Args()[1:]); err != nil {
		log.Error().Err(err).Str("command", def.name).Msg("command failed")
		os.Exit(1)
	}
}

func lookupCommand(name string) (commandDef, bool) {
	for _, def := range commands {
		if def.name == name {
			return def, true
		}
	}

	return commandDef{}, false
}

func runCommand(def commandDef, args []string) error {
	cmd, cleanup, err := def.build()
	if err != nil {
		return fmt.Errorf("could not initialize the application: %w", err)
	}

	defer cleanup()

	flags := pflag.NewFlagSet(def.name, pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "\nUsage:\n  newsletter %s [OPTIONS] %s\n\n  %s\n\nOptions:\n%s\n",
			def.name, def.args, def.usage, flags.FlagUsages())
	}

	cmd.flags(flags)

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cmd.run(log.WithCommand(ctx, def.name), flags.Args())
}

func printUsage(flags *pflag.FlagSet) func() {
	return func() {
		var b strings.Builder
		for _, def := range commands {
			fmt.Fprintf(&b, "  %-18s %s\n", def.name, def.usage)
		}

		fmt.Fprintf(os.Stderr, usageText,
			Version,
			b.String(),
			flags.FlagUsages())
	}
}

func setupLogger() {
	pretty := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	if err := log.Setup(os.Stderr, viper.GetString("log.level"), pretty); err != nil {
		log.Fatal().Err(err).Msg("unknown log level")
	}
}

func setupConfig(filename string) {
	if Version != "" {
		api.Version = Version
	}

	viper.SetTypeByDefaultValue(true)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("NEWSLETTER")

	readConfig(filename)
}

func readConfig(filename string) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("toml")

	if err := viper.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("filename", filename).Msg("no configuration file, using environment only")
			return
		}

		log.Fatal().Err(err).Str("filename", filename).Msg("could not load configuration")
	}
}

func printConfig() {
	keys := viper.AllKeys()
	sort.Strings(keys)

	for _, key := range keys {
		if strings.Contains(key, "password") || strings.HasSuffix(key, "key") {
			continue
		}

		v, err := json.Marshal(viper.Get(key))
		if err != nil {
			continue
		}

		log.Trace().Str("key", key).RawJSON("value", v).Msg("configuration")
	}
}
