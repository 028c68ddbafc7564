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

// Package certs provides tls configurations for the api server. Certificates are reloaded
// whenever their source changes, so renewed certificates are picked up without a restart.
package certs

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/newsletter/internal/log"
)

const (
	sourceNone  = "none"
	sourceFiles = "files"
)

func init() {
	viper.SetDefault("api.tls.source", sourceNone)
}

type certSource interface {
	lastUpdate() (time.Time, error)
	load() (*tls.Certificate, error)
}

// NewTLSConfig creates a tls config from `api.tls.source`. The source "none" disables tls and
// results in a nil config. The source "files" reads a pem encoded certificate and key.
func NewTLSConfig(fs afero.Fs) (*tls.Config, error) {
	switch source := viper.GetString("api.tls.source"); source {
	case sourceNone, "":
		return nil, nil
	case sourceFiles:
		return newReloadingConfig(newFilesCertSource(fs)), nil
	default:
		return nil, fmt.Errorf("unknown certificate source %q", source)
	}
}

// newReloadingConfig returns a config, that checks the source for updates on every handshake.
func newReloadingConfig(source certSource) *tls.Config {
	var (
		lastCert *tls.Certificate
		lastTime time.Time
		mu       sync.Mutex
	)

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			mu.Lock()
			defer mu.Unlock()

			newTime, err := source.lastUpdate()
			if err != nil {
				return nil, fmt.Errorf("could not check for certificate updates: %w", err)
			}

			if lastCert == nil || newTime.After(lastTime) {
				newCert, err := source.load()
				if err != nil {
					return nil, fmt.Errorf("could not load certificate: %w", err)
				}

				lastTime = newTime
				lastCert = newCert

				log.Debug().Time("updated", newTime).Msg("certificate loaded")
			}

			return lastCert, nil
		},
	}
}
