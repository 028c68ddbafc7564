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
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridAPI is the part of the SendGrid client used by the transport.
type SendGridAPI interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridTransport sends messages through the SendGrid v3 api.
type SendGridTransport struct {
	client SendGridAPI
}

// NewSendGridTransport creates a transport authenticated by the api key.
func NewSendGridTransport(apiKey string) *SendGridTransport {
	return NewSendGridTransportWithClient(sendgrid.NewSendClient(apiKey))
}

// NewSendGridTransportWithClient creates a transport on top of an existing client.
func NewSendGridTransportWithClient(client SendGridAPI) *SendGridTransport {
	return &SendGridTransport{client: client}
}

func (t *SendGridTransport) Send(ctx context.Context, message *Message) error {
	email := sgmail.NewSingleEmail(
		sgmail.NewEmail(message.From.Name, message.From.Address),
		message.Subject,
		sgmail.NewEmail("", message.To),
		message.Text,
		message.HTML,
	)

	response, err := t.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}

	return nil
}

func (t *SendGridTransport) Close() error {
	return nil
}
