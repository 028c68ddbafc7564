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

package compose

import (
	"embed"
	"fmt"
	"sync"

	"github.com/osteele/liquid"
	"github.com/spf13/afero"
)

//go:embed templates/*.liquid
var embedded embed.FS

// Templates renders the email templates. Templates found in the override directory take
// precedence over the embedded defaults.
type Templates struct {
	engine    *liquid.Engine
	overrides afero.Fs
	cache     sync.Map // map[string]*liquid.Template
}

// NewTemplates creates the renderer. overrides may be nil.
func NewTemplates(overrides afero.Fs) *Templates {
	return &Templates{
		engine:    liquid.NewEngine(),
		overrides: overrides,
	}
}

// Render renders the template "<name>.liquid" with the bindings.
func (t *Templates) Render(name string, bindings map[string]any) (string, error) {
	template, err := t.template(name)
	if err != nil {
		return "", err
	}

	out, renderErr := template.RenderString(bindings)
	if renderErr != nil {
		return "", fmt.Errorf("could not render template %q: %w", name, renderErr)
	}

	return out, nil
}

func (t *Templates) template(name string) (*liquid.Template, error) {
	if cached, ok := t.cache.Load(name); ok {
		return cached.(*liquid.Template), nil
	}

	source, err := t.source(name + ".liquid")
	if err != nil {
		return nil, fmt.Errorf("could not read template %q: %w", name, err)
	}

	template, parseErr := t.engine.ParseTemplate(source)
	if parseErr != nil {
		return nil, fmt.Errorf("could not parse template %q: %w", name, parseErr)
	}

	t.cache.Store(name, template)
	return template, nil
}

func (t *Templates) source(filename string) ([]byte, error) {
	if t.overrides != nil {
		if ok, _ := afero.Exists(t.overrides, filename); ok {
			return afero.ReadFile(t.overrides, filename)
		}
	}

	return embedded.ReadFile("templates/" + filename)
}
