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
	"errors"
	"fmt"
	"sort"

	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/store"
)

var (
	// ErrPluginNotFound is returned for unknown plugin names.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrCommandNotFound is returned when no enabled plugin offers a command.
	ErrCommandNotFound = errors.New("custom command not found")
	// ErrTemplateNotFound is returned when no enabled plugin offers a template.
	ErrTemplateNotFound = errors.New("custom template not found")
)

// Manager holds the registered plugins and dispatches hooks to the enabled ones.
type Manager struct {
	plugins  []Plugin
	settings *config.Settings
	store    *store.Store
}

// NewManager creates a Manager and registers the built-in plugins.
func NewManager(settings *config.Settings, store *store.Store) (*Manager, error) {
	m := Manager{
		settings: settings,
		store:    store,
	}

	for _, p := range builtins() {
		if err := m.Register(p); err != nil {
			return nil, err
		}
	}

	return &m, nil
}

// Register initializes a plugin with its configuration and adds it to the manager. Plugins without
// configuration are initialized disabled.
func (m *Manager) Register(p Plugin) error {
	name := p.Metadata().Name

	if err := p.Initialize(m.pluginSettings(name)); err != nil {
		return fmt.Errorf("could not initialize plugin %q: %w", name, err)
	}

	m.plugins = append(m.plugins, p)
	return nil
}

// Run executes the hook on every enabled plugin handling it, in registration order. A failing
// plugin produces an unsuccessful Result and does not stop the others.
func (m *Manager) Run(ctx context.Context, hook Hook, data map[string]any) []Result {
	var results []Result

	for _, p := range m.plugins {
		name := p.Metadata().Name

		if !m.Enabled(name) || !p.HandlesHook(hook) {
			continue
		}

		result, err := p.ExecuteHook(ctx, m.newContext(hook, data))
		if err != nil {
			log.WarnContext(ctx).
				Str("plugin", name).
				Str("hook", hook.String()).
				Err(err).
				Msg("plugin failed to execute hook")

			result = &Result{Message: fmt.Sprintf("plugin error: %v", err)}
		}

		if result == nil {
			result = &Result{Success: true}
		}

		results = append(results, *result)
	}

	return results
}

// Commands maps every custom command of the enabled plugins to the plugin name.
func (m *Manager) Commands() map[string]string {
	commands := make(map[string]string)

	for _, p := range m.enabled() {
		for _, command := range p.Commands() {
			if _, ok := commands[command]; !ok {
				commands[command] = p.Metadata().Name
			}
		}
	}

	return commands
}

// ExecuteCommand runs a custom command on the first enabled plugin offering it.
func (m *Manager) ExecuteCommand(ctx context.Context, command string, args []string) (*Result, error) {
	for _, p := range m.enabled() {
		if contains(p.Commands(), command) {
			return p.ExecuteCommand(ctx, command, args, m.newContext(CustomCommand, nil))
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrCommandNotFound, command)
}

// Templates maps every custom template of the enabled plugins to the plugin name.
func (m *Manager) Templates() map[string]string {
	templates := make(map[string]string)

	for _, p := range m.enabled() {
		for _, template := range p.Templates() {
			if _, ok := templates[template]; !ok {
				templates[template] = p.Metadata().Name
			}
		}
	}

	return templates
}

// RenderTemplate renders the newsletter with the first enabled plugin offering the template.
func (m *Manager) RenderTemplate(
	ctx context.Context,
	template string,
	newsletter *models.Newsletter,
) (*models.Newsletter, error) {
	for _, p := range m.enabled() {
		if contains(p.Templates(), template) {
			return p.RenderTemplate(ctx, template, newsletter, m.newContext(CustomTemplate, nil))
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, template)
}

// List returns the metadata of all registered plugins sorted by name.
func (m *Manager) List() []Metadata {
	list := make([]Metadata, len(m.plugins))
	for i, p := range m.plugins {
		list[i] = p.Metadata()
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})

	return list
}

// Get returns a registered plugin by name.
func (m *Manager) Get(name string) (Plugin, error) {
	for _, p := range m.plugins {
		if p.Metadata().Name == name {
			return p, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrPluginNotFound, name)
}

// Enabled reports whether a plugin is configured and enabled.
func (m *Manager) Enabled(name string) bool {
	settings, ok := m.settings.Plugins[name]
	return ok && settings.Enabled
}

func (m *Manager) enabled() []Plugin {
	var plugins []Plugin

	for _, p := range m.plugins {
		if m.Enabled(p.Metadata().Name) {
			plugins = append(plugins, p)
		}
	}

	return plugins
}

func (m *Manager) pluginSettings(name string) config.PluginSettings {
	if settings, ok := m.settings.Plugins[name]; ok {
		return settings
	}

	return config.PluginSettings{Config: make(map[string]any)}
}

func (m *Manager) newContext(hook Hook, data map[string]any) *Context {
	if data == nil {
		data = make(map[string]any)
	}

	return &Context{
		Hook:     hook,
		Settings: m.settings,
		Store:    m.store,
		Data:     data,
	}
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}

	return false
}
