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

package certs

import (
	"crypto/tls"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

func init() {
	viper.SetDefault("api.tls.files.crt", ".blogr/certs/newsletter.crt")
	viper.SetDefault("api.tls.files.key", ".blogr/certs/newsletter.key")
}

type filesCertSource struct {
	fs          afero.Fs
	crtFilename string
	keyFilename string
}

func newFilesCertSource(fs afero.Fs) *filesCertSource {
	return &filesCertSource{
		fs:          fs,
		crtFilename: viper.GetString("api.tls.files.crt"),
		keyFilename: viper.GetString("api.tls.files.key"),
	}
}

// lastUpdate is the latest modification of either file.
func (s *filesCertSource) lastUpdate() (time.Time, error) {
	var updateTime time.Time

	for _, filename := range [...]string{s.crtFilename, s.keyFilename} {
		info, err := s.fs.Stat(filename)
		if err != nil {
			return updateTime, err
		}

		if info.ModTime().After(updateTime) {
			updateTime = info.ModTime()
		}
	}

	return updateTime, nil
}

func (s *filesCertSource) load() (*tls.Certificate, error) {
	crt, err := afero.ReadFile(s.fs, s.crtFilename)
	if err != nil {
		return nil, err
	}

	key, err := afero.ReadFile(s.fs, s.keyFilename)
	if err != nil {
		return nil, err
	}

	certificate, err := tls.X509KeyPair(crt, key)
	if err != nil {
		return nil, err
	}

	return &certificate, nil
}
