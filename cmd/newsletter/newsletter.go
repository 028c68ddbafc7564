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

	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/lukasdietrich/newsletter/internal/compose"
	"github.com/lukasdietrich/newsletter/internal/delivery"
	"github.com/lukasdietrich/newsletter/internal/mails"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/store"
)

type newsletterMode int

const (
	sendLatest newsletterMode = iota
	sendCustom
	draftLatest
	draftCustom
	sendTest
)

// newsletterCommand composes newsletters and sends or previews them, depending on the mode.
type newsletterCommand struct {
	Store      *store.Store
	Composer   *compose.Composer
	Posts      compose.PostProvider
	Dispatcher *delivery.Dispatcher
	Fs         afero.Fs

	mode    newsletterMode `wire:"-"`
	subject string         `wire:"-"`
	content string         `wire:"-"`
	file    string         `wire:"-"`
	yes     bool           `wire:"-"`
}

func injectNewsletter(mode newsletterMode) func() (command, func(), error) {
	return func() (command, func(), error) {
		cmd, cleanup, err := newNewsletterCommand()
		if err != nil {
			return nil, nil, err
		}

		cmd.mode = mode
		return cmd, cleanup, nil
	}
}

func (c *newsletterCommand) flags(flags *pflag.FlagSet) {
	if c.mode == sendCustom || c.mode == draftCustom || c.mode == sendTest {
		flags.StringVar(&c.subject, "subject", "", "Subject of the newsletter")
		flags.StringVar(&c.content, "content", "", "Markdown content of the newsletter")
		flags.StringVarP(&c.file, "file", "f", "", "Read the markdown content from a file")
	}

	if c.mode == sendLatest || c.mode == sendCustom {
		flags.BoolVarP(&c.yes, "yes", "y", false, "Do not ask for confirmation")
	}
}

func (c *newsletterCommand) run(ctx context.Context, args []string) error {
	switch c.mode {
	case sendTest:
		if len(args) != 1 {
			return errArgs
		}
	default:
		if len(args) > 0 {
			return errArgs
		}
	}

	newsletter, err := c.compose(ctx)
	if err != nil {
		return err
	}

	switch c.mode {
	case draftLatest, draftCustom:
		compose.Preview(os.Stdout, newsletter)
		return nil

	case sendTest:
		address, err := mails.ParseAddress(args[0])
		if err != nil {
			return err
		}

		if err := c.Dispatcher.SendTest(ctx, newsletter, address); err != nil {
			return err
		}

		fmt.Printf("Test newsletter %q sent to %s.\n", newsletter.Subject, address)
		return nil

	default:
		return c.send(ctx, newsletter)
	}
}

func (c *newsletterCommand) compose(ctx context.Context) (*models.Newsletter, error) {
	custom := c.mode == sendCustom || c.mode == draftCustom || (c.mode == sendTest && c.subject != "")
	if !custom {
		return c.Composer.ComposeLatest(ctx, c.Posts)
	}

	if c.subject == "" {
		return nil, errors.New("the flag --subject is required")
	}

	content := c.content
	if c.file != "" {
		raw, err := afero.ReadFile(c.Fs, c.file)
		if err != nil {
			return nil, err
		}

		content = string(raw)
	}

	if content == "" {
		return nil, errors.New("either --content or --file is required")
	}

	return c.Composer.ComposeCustom(ctx, c.subject, content)
}

func (c *newsletterCommand) send(ctx context.Context, newsletter *models.Newsletter) error {
	if err := c.Dispatcher.Check(); err != nil {
		return err
	}

	approved := models.StatusApproved

	count, err := c.Store.Count(ctx, &approved)
	if err != nil {
		return err
	}

	if !c.yes && count > 0 {
		ok, err := confirm(fmt.Sprintf("Send %q to %d approved subscribers?", newsletter.Subject, count))
		if err != nil || !ok {
			return err
		}
	}

	report, err := c.Dispatcher.Send(ctx, newsletter, progress)
	if err != nil {
		return err
	}

	renderReport(os.Stdout, report)
	return nil
}
