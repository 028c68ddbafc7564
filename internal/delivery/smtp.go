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

package delivery

import (
	"context"
	"crypto/tls"
	"net"
	"net/smtp"

	"github.com/spf13/viper"

	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/log"
)

const implicitTLSPort = 465

func init() {
	viper.SetDefault("delivery.smtp.hostname", "localhost")
}

// SMTPTransport submits messages to an authenticated SMTP server. The connection is opened on the
// first send and reused until Close or until a non-permanent error leaves it in an unknown state.
type SMTPTransport struct {
	server   *config.MailServer
	password string
	hostname string
	client   *smtp.Client
}

// NewSMTPTransport creates a transport for the server.
//
// `delivery.smtp.hostname` is the name used to greet the server.
func NewSMTPTransport(server *config.MailServer, password string) *SMTPTransport {
	return &SMTPTransport{
		server:   server,
		password: password,
		hostname: viper.GetString("delivery.smtp.hostname"),
	}
}

// Send delivers a single message.
func (t *SMTPTransport) Send(ctx context.Context, message *Message) error {
	data, err := message.Bytes()
	if err != nil {
		return err
	}

	if t.client == nil {
		if err := t.connect(ctx); err != nil {
			return err
		}
	}

	if err := t.submit(message, data); err != nil {
		if isPermanentErr(err) {
			// the server rejected this message, but the session is still usable
			if resetErr := t.client.Reset(); resetErr == nil {
				return err
			}
		}

		t.drop(ctx)
		return err
	}

	return nil
}

// Close quits the session, if one is open.
func (t *SMTPTransport) Close() error {
	if t.client == nil {
		return nil
	}

	client := t.client
	t.client = nil

	if err := client.Quit(); err != nil {
		client.Close()
		return err
	}

	return nil
}

// connect dials the server, says hello and authenticates. Port 465 uses implicit tls, every other
// port is upgraded with STARTTLS if the server offers it.
func (t *SMTPTransport) connect(ctx context.Context) error {
	var (
		conn net.Conn
		err  error
	)

	tlsConfig := tls.Config{
		ServerName: t.server.Server,
	}

	if t.server.Port == implicitTLSPort {
		dialer := tls.Dialer{Config: &tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", t.server.Address())
	} else {
		var dialer net.Dialer
		conn, err = dialer.DialContext(ctx, "tcp", t.server.Address())
	}

	if err != nil {
		return err
	}

	client, err := smtp.NewClient(conn, t.server.Server)
	if err != nil {
		conn.Close()
		return err
	}

	if err := t.initClient(client, &tlsConfig); err != nil {
		client.Close()
		return err
	}

	log.DebugContext(ctx).
		Str("server", t.server.Address()).
		Msg("connected to smtp server")

	t.client = client
	return nil
}

func (t *SMTPTransport) initClient(client *smtp.Client, tlsConfig *tls.Config) error {
	if err := client.Hello(t.hostname); err != nil {
		return err
	}

	if t.server.Port != implicitTLSPort && t.server.TLS() {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}

	if ok, _ := client.Extension("AUTH"); ok {
		auth := smtp.PlainAuth("", t.server.Username, t.password, t.server.Server)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	return nil
}

// submit writes the envelope and the content of a message.
func (t *SMTPTransport) submit(message *Message, data []byte) error {
	if err := t.client.Mail(message.From.Address); err != nil {
		return err
	}

	if err := t.client.Rcpt(message.To); err != nil {
		return err
	}

	w, err := t.client.Data()
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}

	return w.Close()
}

func (t *SMTPTransport) drop(ctx context.Context) {
	if err := t.client.Close(); err != nil {
		log.DebugContext(ctx).
			Err(err).
			Msg("could not close smtp connection")
	}

	t.client = nil
}
