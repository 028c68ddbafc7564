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

// Package plugin is a synchronous extension point of the newsletter. Plugins are compiled in,
// registered with a Manager and only run when enabled in the configuration.
package plugin

import (
	"context"
	"fmt"

	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/store"
)

// Hook is a point in the newsletter workflow plugins can attach to.
type Hook int

const (
	PreFetch Hook = iota
	PostFetch
	PreApprove
	PostApprove
	PreCompose
	PostCompose
	PreSend
	PostSend
	CustomCommand
	CustomTemplate
)

var hookNames = [...]string{
	"pre-fetch",
	"post-fetch",
	"pre-approve",
	"post-approve",
	"pre-compose",
	"post-compose",
	"pre-send",
	"post-send",
	"custom-command",
	"custom-template",
}

func (h Hook) String() string {
	if h < 0 || int(h) >= len(hookNames) {
		return fmt.Sprintf("hook(%d)", int(h))
	}

	return hookNames[h]
}

// Metadata describes a plugin.
type Metadata struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Author       string   `json:"author"`
	Description  string   `json:"description"`
	Homepage     string   `json:"homepage,omitempty"`
	Repository   string   `json:"repository,omitempty"`
	License      string   `json:"license,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Context is handed to every plugin invocation.
type Context struct {
	Hook     Hook
	Settings *config.Settings
	Store    *store.Store
	Data     map[string]any
}

// Result is returned by plugin invocations. Newsletter and Subscribers are optional replacements
// offered by the plugin.
type Result struct {
	Success     bool                      `json:"success"`
	Message     string                    `json:"message,omitempty"`
	Data        map[string]any            `json:"data,omitempty"`
	Newsletter  *models.Newsletter        `json:"newsletter,omitempty"`
	Subscribers []models.SubscriberEntity `json:"subscribers,omitempty"`
}

// Plugin is implemented by every extension.
type Plugin interface {
	Metadata() Metadata
	Initialize(config.PluginSettings) error
	HandlesHook(Hook) bool
	ExecuteHook(context.Context, *Context) (*Result, error)

	Commands() []string
	ExecuteCommand(ctx context.Context, command string, args []string, pctx *Context) (*Result, error)

	Templates() []string
	RenderTemplate(ctx context.Context, template string, newsletter *models.Newsletter, pctx *Context) (*models.Newsletter, error)
}

// Base implements the optional parts of Plugin. Embed it to provide hooks only.
type Base struct{}

func (Base) Commands() []string { return nil }

func (Base) ExecuteCommand(_ context.Context, command string, _ []string, _ *Context) (*Result, error) {
	return nil, fmt.Errorf("%w: %q", ErrCommandNotFound, command)
}

func (Base) Templates() []string { return nil }

func (Base) RenderTemplate(_ context.Context, template string, _ *models.Newsletter, _ *Context) (*models.Newsletter, error) {
	return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, template)
}
