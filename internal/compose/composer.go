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

// Package compose turns blog posts and custom markdown into newsletters. The bodies keep the
// unsubscribe markers, they are resolved for every recipient at send time.
package compose

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/mails"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/plugin"
)

const (
	wordsPerMinute = 200
	previewLength  = 500
)

func init() {
	viper.SetDefault("newsletter.template", "")
}

// Plugins is the part of the plugin manager used while composing.
type Plugins interface {
	Run(ctx context.Context, hook plugin.Hook, data map[string]any) []plugin.Result
	RenderTemplate(ctx context.Context, template string, newsletter *models.Newsletter) (*models.Newsletter, error)
}

// Composer renders newsletters.
type Composer struct {
	settings  *config.Settings
	templates *Templates
	plugins   Plugins
	markdown  goldmark.Markdown
	template  string
}

// NewComposer creates a composer. plugins may be nil.
//
// `newsletter.template` names a plugin template applied after rendering.
func NewComposer(settings *config.Settings, templates *Templates, plugins Plugins) *Composer {
	return &Composer{
		settings:  settings,
		templates: templates,
		plugins:   plugins,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		template: viper.GetString("newsletter.template"),
	}
}

// ComposeFromPost renders a post. The subject is "<newsletter title>: <post title>".
func (c *Composer) ComposeFromPost(ctx context.Context, post *Post) (*models.Newsletter, error) {
	subject := fmt.Sprintf("%s: %s", c.settings.DisplayName(), post.Title)
	c.runHook(ctx, plugin.PreCompose, map[string]any{"subject": subject, "post": post.Title})

	content, err := c.postContent(post)
	if err != nil {
		return nil, err
	}

	bindings := c.bindings(subject)
	bindings["content"] = content
	bindings["reading_time"] = ReadingTime(mails.HTMLToText(content))
	bindings["post"] = map[string]any{
		"title":       post.Title,
		"author":      post.Author,
		"description": post.Description,
		"url":         post.URL,
		"tags":        post.Tags,
		"date":        formatDate(post.Date),
	}

	return c.render(ctx, "post", subject, bindings)
}

// ComposeCustom renders a newsletter from a subject and markdown content.
func (c *Composer) ComposeCustom(ctx context.Context, subject, content string) (*models.Newsletter, error) {
	c.runHook(ctx, plugin.PreCompose, map[string]any{"subject": subject})

	rendered, err := c.renderMarkdown(content)
	if err != nil {
		return nil, err
	}

	bindings := c.bindings(subject)
	bindings["content"] = rendered

	return c.render(ctx, "custom", subject, bindings)
}

// ComposeLatest renders the latest post of the provider.
func (c *Composer) ComposeLatest(ctx context.Context, provider PostProvider) (*models.Newsletter, error) {
	post, err := provider.LatestPost(ctx)
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx).
		Str("title", post.Title).
		Time("date", post.Date).
		Msg("composing newsletter from latest post")

	return c.ComposeFromPost(ctx, post)
}

func (c *Composer) bindings(subject string) map[string]any {
	return map[string]any{
		"subject":          subject,
		"newsletter_title": c.settings.DisplayName(),
		"unsubscribe_url":  models.URLMarker,
		"site": map[string]any{
			"title":    c.settings.BlogTitle,
			"base_url": c.settings.BlogURL,
		},
	}
}

func (c *Composer) render(ctx context.Context, name, subject string, bindings map[string]any) (*models.Newsletter, error) {
	body, err := c.templates.Render(name, bindings)
	if err != nil {
		return nil, err
	}

	bindings["body"] = body

	document, err := c.templates.Render("base", bindings)
	if err != nil {
		return nil, err
	}

	newsletter := &models.Newsletter{
		Subject:     subject,
		HTMLContent: document,
		TextContent: mails.HTMLToText(document),
		CreatedAt:   time.Now().UTC(),
	}

	if c.template != "" && c.plugins != nil {
		if newsletter, err = c.plugins.RenderTemplate(ctx, c.template, newsletter); err != nil {
			return nil, err
		}
	}

	for _, result := range c.runHook(ctx, plugin.PostCompose, map[string]any{"subject": subject}) {
		if result.Success && result.Newsletter != nil {
			newsletter = result.Newsletter
		}
	}

	return newsletter, nil
}

func (c *Composer) postContent(post *Post) (string, error) {
	if post.HTML != "" {
		return post.HTML, nil
	}

	return c.renderMarkdown(post.Markdown)
}

func (c *Composer) renderMarkdown(source string) (string, error) {
	var buffer bytes.Buffer

	if err := c.markdown.Convert([]byte(source), &buffer); err != nil {
		return "", fmt.Errorf("could not render markdown: %w", err)
	}

	return buffer.String(), nil
}

func (c *Composer) runHook(ctx context.Context, hook plugin.Hook, data map[string]any) []plugin.Result {
	if c.plugins == nil {
		return nil
	}

	return c.plugins.Run(ctx, hook, data)
}

// ReadingTime estimates the minutes needed to read a text. It is at least one minute.
func ReadingTime(text string) int {
	minutes := len(strings.Fields(text)) / wordsPerMinute
	if minutes < 1 {
		return 1
	}

	return minutes
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format("January 2, 2006")
}

// Preview writes a terminal preview of the newsletter. The html body is truncated.
func Preview(w io.Writer, newsletter *models.Newsletter) {
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(w, "Newsletter Preview")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Subject: %s\n", newsletter.Subject)
	fmt.Fprintf(w, "Created: %s\n", newsletter.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Plain Text Version:")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintln(w, newsletter.TextContent)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "HTML Version:")
	fmt.Fprintln(w, strings.Repeat("-", 60))

	if document := newsletter.HTMLContent; len(document) > previewLength {
		fmt.Fprintf(w, "%s...\n\n[HTML content truncated, %d total characters]\n", document[:previewLength], len(document))
	} else {
		fmt.Fprintln(w, document)
	}
}
