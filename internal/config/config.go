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

// Package config resolves the newsletter settings once at startup. Structured values from the
// configuration file take precedence, the legacy NEWSLETTER_* environment variables are used as a
// fallback.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// ErrConfigMissing is returned when the newsletter is disabled or required settings are absent.
var ErrConfigMissing = errors.New("newsletter configuration missing")

const (
	envIMAPServer   = "NEWSLETTER_IMAP_SERVER"
	envIMAPPort     = "NEWSLETTER_IMAP_PORT"
	envIMAPUsername = "NEWSLETTER_IMAP_USERNAME"
	envIMAPPassword = "NEWSLETTER_IMAP_PASSWORD"
	envSMTPServer   = "NEWSLETTER_SMTP_SERVER"
	envSMTPPort     = "NEWSLETTER_SMTP_PORT"
	envSMTPUsername = "NEWSLETTER_SMTP_USERNAME"
	envSMTPPassword = "NEWSLETTER_SMTP_PASSWORD"
)

func init() {
	viper.SetDefault("newsletter.enabled", false)
	viper.SetDefault("newsletter.rate_limit", 10)
	viper.SetDefault("blog.title", "Newsletter")
	viper.SetDefault("delivery.transport", "smtp")
}

// MailServer describes the connection to an IMAP or SMTP server. Passwords are never part of the
// configuration file.
type MailServer struct {
	Server   string `mapstructure:"server"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	UseTLS   *bool  `mapstructure:"use_tls"`
}

// Address returns "server:port".
func (m *MailServer) Address() string {
	return net.JoinHostPort(m.Server, strconv.Itoa(m.Port))
}

// TLS reports whether the connection should be encrypted. It defaults to true.
func (m *MailServer) TLS() bool {
	return m.UseTLS == nil || *m.UseTLS
}

// PluginSettings is the per-plugin section "newsletter.plugins.<name>".
type PluginSettings struct {
	Enabled bool           `mapstructure:"enabled"`
	Config  map[string]any `mapstructure:"config"`
}

// Settings is the resolved newsletter configuration.
type Settings struct {
	Enabled             bool
	SubscribeEmail      string
	SenderName          string
	ConfirmationSubject string
	BlogTitle           string
	BlogURL             string
	RateLimit           int
	Transport           string

	IMAP         *MailServer
	SMTP         *MailServer
	IMAPPassword string
	SMTPPassword string

	Plugins map[string]PluginSettings
}

// Resolve builds the settings from the configuration and a snapshot of the environment. It does
// not read any global state.
func Resolve(v *viper.Viper, env map[string]string) (*Settings, error) {
	settings := Settings{
		Enabled:             v.GetBool("newsletter.enabled"),
		SubscribeEmail:      v.GetString("newsletter.subscribe_email"),
		SenderName:          v.GetString("newsletter.sender_name"),
		ConfirmationSubject: v.GetString("newsletter.confirmation_subject"),
		BlogTitle:           v.GetString("blog.title"),
		BlogURL:             v.GetString("blog.base_url"),
		RateLimit:           v.GetInt("newsletter.rate_limit"),
		Transport:           strings.ToLower(v.GetString("delivery.transport")),
		IMAPPassword:        env[envIMAPPassword],
		SMTPPassword:        env[envSMTPPassword],
	}

	var err error

	if settings.IMAP, err = resolveServer(v, "newsletter.imap", env, envIMAPServer, envIMAPPort, envIMAPUsername); err != nil {
		return nil, err
	}

	if settings.SMTP, err = resolveServer(v, "newsletter.smtp", env, envSMTPServer, envSMTPPort, envSMTPUsername); err != nil {
		return nil, err
	}

	if err := v.UnmarshalKey("newsletter.plugins", &settings.Plugins); err != nil {
		return nil, fmt.Errorf("could not read plugin configuration: %w", err)
	}

	if settings.RateLimit <= 0 {
		settings.RateLimit = 10
	}

	return &settings, nil
}

func resolveServer(
	v *viper.Viper,
	key string,
	env map[string]string,
	serverVar, portVar, usernameVar string,
) (*MailServer, error) {
	if v.IsSet(key) {
		var server MailServer
		if err := v.UnmarshalKey(key, &server); err != nil {
			return nil, fmt.Errorf("could not read %q: %w", key, err)
		}

		return &server, nil
	}

	server, hasServer := env[serverVar]
	username, hasUsername := env[usernameVar]

	port, err := strconv.Atoi(env[portVar])
	if !hasServer || !hasUsername || err != nil {
		return nil, nil
	}

	useTLS := true

	return &MailServer{
		Server:   server,
		Port:     port,
		Username: username,
		UseTLS:   &useTLS,
	}, nil
}

// RequireIMAP returns the IMAP server and its password, or ErrConfigMissing with a hint on how to
// set it up.
func (s *Settings) RequireIMAP() (*MailServer, string, error) {
	if err := s.RequireEnabled(); err != nil {
		return nil, "", err
	}

	if s.IMAP == nil {
		return nil, "", fmt.Errorf("%w: set up [newsletter.imap] in the configuration file or %s, %s and %s",
			ErrConfigMissing, envIMAPServer, envIMAPPort, envIMAPUsername)
	}

	if s.IMAPPassword == "" {
		return nil, "", fmt.Errorf("%w: %s is not set", ErrConfigMissing, envIMAPPassword)
	}

	return s.IMAP, s.IMAPPassword, nil
}

// RequireSMTP returns the SMTP server and its password, or ErrConfigMissing with a hint on how to
// set it up.
func (s *Settings) RequireSMTP() (*MailServer, string, error) {
	if err := s.RequireEnabled(); err != nil {
		return nil, "", err
	}

	if s.SMTP == nil {
		return nil, "", fmt.Errorf("%w: set up [newsletter.smtp] in the configuration file or %s, %s and %s",
			ErrConfigMissing, envSMTPServer, envSMTPPort, envSMTPUsername)
	}

	if s.SMTPPassword == "" {
		return nil, "", fmt.Errorf("%w: %s is not set", ErrConfigMissing, envSMTPPassword)
	}

	return s.SMTP, s.SMTPPassword, nil
}

// RequireEnabled returns ErrConfigMissing while the newsletter is disabled.
func (s *Settings) RequireEnabled() error {
	if !s.Enabled {
		return fmt.Errorf("%w: set newsletter.enabled = true in the configuration file", ErrConfigMissing)
	}

	return nil
}

// DisplayName is the name used in the "From" header and as the newsletter title.
func (s *Settings) DisplayName() string {
	if s.SenderName != "" {
		return s.SenderName
	}

	return s.BlogTitle
}

// Environ returns a snapshot of the process environment.
func Environ() map[string]string {
	env := make(map[string]string)

	for _, pair := range os.Environ() {
		if key, value, ok := strings.Cut(pair, "="); ok {
			env[key] = value
		}
	}

	return env
}
