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

// Package shell is an interactive shell to review and manage subscribers.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/ktr0731/go-fuzzyfinder"

	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/plugin"
)

// Store is the part of the subscriber store used by the shell.
type Store interface {
	List(ctx context.Context, status *models.SubscriberStatus) ([]models.SubscriberEntity, error)
	Get(ctx context.Context, email string) (*models.SubscriberEntity, error)
	Add(ctx context.Context, subscriber *models.SubscriberEntity) (int64, error)
	Update(ctx context.Context, email string, status *models.SubscriberStatus, notes *string) (*models.SubscriberEntity, error)
	Remove(ctx context.Context, email string) (bool, error)
	Stats(ctx context.Context) (*models.StatusCounts, error)
}

// Plugins is the part of the plugin manager used by the shell.
type Plugins interface {
	List() []plugin.Metadata
	Enabled(name string) bool
	ExecuteCommand(ctx context.Context, command string, args []string) (*plugin.Result, error)
}

// Shell is an interactive shell to manage newsletter subscribers.
type Shell struct {
	store    Store
	plugins  Plugins
	selector Selector
	out      io.Writer
	commands cmdSlice
}

// NewShell creates a new shell instance.
func NewShell(store Store, plugins Plugins) *Shell {
	return &Shell{
		store:    store,
		plugins:  plugins,
		selector: FuzzySelector{},
		out:      os.Stdout,
		commands: cmdSlice{
			{
				name: "subscriber",
				help: "Manage the subscribers of the newsletter.",
				children: cmdSlice{
					{
						name:   "info",
						help:   "Show a subscriber.",
						action: infoSubscriber,
					},
					{
						name:   "add",
						help:   "Add a subscriber by hand.",
						action: addSubscriber,
					},
					{
						name:   "approve",
						help:   "Approve subscribers.",
						action: setStatus(models.StatusApproved),
					},
					{
						name:   "decline",
						help:   "Decline subscribers.",
						action: setStatus(models.StatusDeclined),
					},
					{
						name:   "reset",
						help:   "Move subscribers back to pending.",
						action: setStatus(models.StatusPending),
					},
					{
						name:   "notes",
						help:   "Edit the notes of a subscriber.",
						action: editNotes,
					},
					{
						name:   "delete",
						help:   "Delete subscribers permanently.",
						action: deleteSubscribers,
					},
				},
			},
			{
				name:   "stats",
				help:   "Show the number of subscribers per status.",
				action: showStats,
			},
			{
				name: "plugin",
				help: "Inspect and run plugins.",
				children: cmdSlice{
					{
						name:   "list",
						help:   "List the registered plugins.",
						action: listPlugins,
					},
					{
						name:   "run",
						help:   "Run a custom plugin command.",
						action: runPluginCommand,
					},
				},
			},
		},
	}
}

// Run starts the shell read loop.
func (s *Shell) Run(ctx context.Context) error {
	config := readline.Config{
		AutoComplete: readline.NewPrefixCompleter(s.commands.buildCompleters()...),
	}

	rl, err := readline.NewEx(&config)
	if err != nil {
		return err
	}

	defer rl.Close()

	for {
		rl.SetPrompt(">>> ")

		line, err := rl.Readline()
		if err != nil {
			if isUnimportantError(err) {
				return nil
			}

			return err
		}

		args := strings.Fields(line)
		if err := s.handleCommand(ctx, readlinePrompter{rl}, args); err != nil && !isUnimportantError(err) {
			fmt.Fprintf(s.out, "\nERROR:\n  %s\n\n", err)
		}
	}
}

func isUnimportantError(err error) bool {
	return errors.Is(err, fuzzyfinder.ErrAbort) ||
		errors.Is(err, readline.ErrInterrupt) ||
		errors.Is(err, io.EOF)
}

type cmdFunc func(*cmdContext) error

type cmdSlice []cmdDef

func (s cmdSlice) lookup(args []string) (cmdDef, []string, bool) {
	if len(s) > 0 && len(args) > 0 {
		var (
			head = args[0]
			tail = args[1:]
		)

		for _, cmd := range s {
			if head == cmd.name {
				if len(tail) > 0 && len(cmd.children) > 0 {
					return cmd.children.lookup(tail)
				}

				return cmd, tail, true
			}
		}
	}

	return cmdDef{}, nil, false
}

func (s cmdSlice) buildCompleters() []readline.PrefixCompleterInterface {
	var completers []readline.PrefixCompleterInterface

	for _, cmd := range s {
		cmdCompleter := readline.PcItem(cmd.name, cmd.children.buildCompleters()...)
		completers = append(completers, cmdCompleter)
	}

	return completers
}

type cmdDef struct {
	name     string
	help     string
	action   cmdFunc
	children cmdSlice
}

// Prompter asks the user for a line of input.
type Prompter interface {
	Ask(prompt, defaultValue string) (string, error)
}

type readlinePrompter struct {
	rl *readline.Instance
}

func (p readlinePrompter) Ask(prompt, defaultValue string) (string, error) {
	p.rl.HistoryDisable()
	defer p.rl.HistoryEnable()

	p.rl.SetPrompt(prompt)

	for {
		answer, err := p.rl.ReadlineWithDefault(defaultValue)
		if err != nil || len(strings.TrimSpace(answer)) > 0 {
			return strings.TrimSpace(answer), err
		}
	}
}

type cmdContext struct {
	context.Context
	prompter  Prompter
	selector  Selector
	store     Store
	plugins   Plugins
	args      []string
	infoLines []string
}

func (c *cmdContext) info(format string, v ...any) {
	text := fmt.Sprintf(format, v...)
	c.infoLines = append(c.infoLines, text)
}

func (c *cmdContext) ask(prompt string) (string, error) {
	return c.prompter.Ask(prompt, "")
}

func (c *cmdContext) askWithDefault(prompt, defaultValue string) (string, error) {
	return c.prompter.Ask(prompt, defaultValue)
}

func (s *Shell) handleCommand(ctx context.Context, prompter Prompter, args []string) error {
	cmd, rest, ok := s.commands.lookup(args)
	if ok {
		if cmd.action != nil {
			return s.executeCommand(ctx, prompter, cmd, rest)
		}

		s.printCommandHelp(cmd)
	} else if len(args) > 0 {
		s.printCommandUnknown(args)
	}

	return nil
}

func (s *Shell) executeCommand(ctx context.Context, prompter Prompter, cmd cmdDef, args []string) error {
	cmdCtx := cmdContext{
		Context:  log.WithOrigin(log.WithCommand(ctx, cmd.name), "shell"),
		prompter: prompter,
		selector: s.selector,
		store:    s.store,
		plugins:  s.plugins,
		args:     args,
	}

	if err := cmd.action(&cmdCtx); err != nil {
		return err
	}

	if len(cmdCtx.infoLines) > 0 {
		fmt.Fprintln(s.out)

		for _, infoLine := range cmdCtx.infoLines {
			fmt.Fprint(s.out, "  ")
			fmt.Fprintln(s.out, infoLine)
		}

		fmt.Fprintln(s.out)
	}

	return nil
}

func (s *Shell) printCommandUnknown(args []string) {
	fmt.Fprintf(s.out, "\n  Unknown command %q\n", strings.Join(args, " "))
	s.printCommandUsage(s.commands)
}

func (s *Shell) printCommandHelp(cmd cmdDef) {
	fmt.Fprintf(s.out, "\n  %s\n", cmd.help)
	s.printCommandUsage(cmd.children)
}

func (s *Shell) printCommandUsage(cmds cmdSlice) {
	if len(cmds) > 0 {
		fmt.Fprintln(s.out)
		fmt.Fprintln(s.out, "Commands:")

		for _, cmd := range cmds {
			fmt.Fprintf(s.out, "  %-10s  %s\n", cmd.name, cmd.help)
		}
	}

	fmt.Fprintln(s.out)
}
