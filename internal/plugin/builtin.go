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

package plugin

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/models"
)

func builtins() []Plugin {
	return []Plugin{
		new(statsPlugin),
		new(plaintextPlugin),
	}
}

// statsPlugin reports subscriber counts on demand and logs the outcome of fetch and send passes.
type statsPlugin struct {
	Base

	since time.Duration
}

func (*statsPlugin) Metadata() Metadata {
	return Metadata{
		Name:        "stats",
		Version:     "1.0.0",
		Author:      "newsletter",
		Description: "Subscriber statistics and pass summaries",
		License:     "GPL-3.0",
		Keywords:    []string{"stats", "analytics"},
	}
}

func (p *statsPlugin) Initialize(settings config.PluginSettings) error {
	p.since = 30 * 24 * time.Hour

	if raw, ok := settings.Config["since"].(string); ok {
		since, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration for since: %w", err)
		}

		p.since = since
	}

	return nil
}

func (*statsPlugin) HandlesHook(hook Hook) bool {
	return hook == PostFetch || hook == PostSend
}

func (*statsPlugin) ExecuteHook(ctx context.Context, pctx *Context) (*Result, error) {
	event := log.InfoContext(ctx).Str("hook", pctx.Hook.String())
	for key, value := range pctx.Data {
		event = event.Interface(key, value)
	}

	event.Msg("pass completed")
	return &Result{Success: true}, nil
}

func (*statsPlugin) Commands() []string {
	return []string{"stats", "recent"}
}

func (p *statsPlugin) ExecuteCommand(ctx context.Context, command string, args []string, pctx *Context) (*Result, error) {
	switch command {
	case "stats":
		counts, err := pctx.Store.Stats(ctx)
		if err != nil {
			return nil, err
		}

		return &Result{
			Success: true,
			Message: fmt.Sprintf("%d subscribers: %d pending, %d approved, %d declined",
				counts.Total, counts.Pending, counts.Approved, counts.Declined),
			Data: map[string]any{
				"total":    counts.Total,
				"pending":  counts.Pending,
				"approved": counts.Approved,
				"declined": counts.Declined,
			},
		}, nil

	case "recent":
		since := p.since
		if len(args) > 0 {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return nil, fmt.Errorf("invalid duration %q: %w", args[0], err)
			}

			since = d
		}

		subscribers, err := pctx.Store.List(ctx, nil)
		if err != nil {
			return nil, err
		}

		cutoff := time.Now().Add(-since)

		var recent []models.SubscriberEntity
		for _, subscriber := range subscribers {
			// the list is sorted by subscription time, newest first
			if subscriber.SubscribedAt.Before(cutoff) {
				break
			}

			recent = append(recent, subscriber)
		}

		return &Result{
			Success:     true,
			Message:     fmt.Sprintf("%d subscribers in the last %s", len(recent), since),
			Subscribers: recent,
		}, nil
	}

	return p.Base.ExecuteCommand(ctx, command, args, pctx)
}

// plaintextPlugin offers a template that sends the text body only, wrapped in a pre block.
type plaintextPlugin struct {
	Base
}

func (*plaintextPlugin) Metadata() Metadata {
	return Metadata{
		Name:        "plaintext",
		Version:     "1.0.0",
		Author:      "newsletter",
		Description: "Plain text newsletter template",
		License:     "GPL-3.0",
		Keywords:    []string{"template"},
	}
}

func (*plaintextPlugin) Initialize(config.PluginSettings) error { return nil }

func (*plaintextPlugin) HandlesHook(Hook) bool { return false }

func (*plaintextPlugin) ExecuteHook(context.Context, *Context) (*Result, error) {
	return &Result{Success: true}, nil
}

func (*plaintextPlugin) Templates() []string {
	return []string{"plaintext"}
}

func (p *plaintextPlugin) RenderTemplate(
	ctx context.Context,
	template string,
	newsletter *models.Newsletter,
	pctx *Context,
) (*models.Newsletter, error) {
	if template != "plaintext" {
		return p.Base.RenderTemplate(ctx, template, newsletter, pctx)
	}

	rendered := *newsletter
	rendered.HTMLContent = "<pre style=\"white-space: pre-wrap\">" +
		html.EscapeString(strings.TrimSpace(newsletter.TextContent)) +
		"</pre>"

	return &rendered, nil
}
