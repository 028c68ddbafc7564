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
	"bytes"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/lukasdietrich/newsletter/internal/models"
)

// Message is a single outbound mail to one recipient.
type Message struct {
	From    *mail.Address
	To      string
	Subject string
	HTML    string
	Text    string
}

// NewMessage addresses a personalized newsletter to a recipient.
func NewMessage(from *mail.Address, to string, newsletter *models.Newsletter) *Message {
	return &Message{
		From:    from,
		To:      to,
		Subject: newsletter.Subject,
		HTML:    newsletter.HTMLContent,
		Text:    newsletter.TextContent,
	}
}

// Bytes encodes the message as multipart/alternative with a plain text and an html part.
func (m *Message) Bytes() ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{m.From})
	h.SetAddressList("To", []*mail.Address{{Address: m.To}})
	h.SetSubject(m.Subject)

	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}

	var buffer bytes.Buffer

	w, err := mail.CreateInlineWriter(&buffer, h)
	if err != nil {
		return nil, err
	}

	if err := writePart(w, "text/plain", m.Text); err != nil {
		return nil, err
	}

	if err := writePart(w, "text/html", m.HTML); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}

func writePart(w *mail.InlineWriter, contentType, body string) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(part, body); err != nil {
		part.Close()
		return err
	}

	return part.Close()
}
