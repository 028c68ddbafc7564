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

package mails

import (
	"fmt"
	"io"
	"strings"
	"time"

	// registers decoders for non utf-8 charsets used by go-message.
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Envelope is a fetched email reduced to the fields needed to detect subscription requests. It is
// only valid during a single ingestion pass.
type Envelope struct {
	// ID is the mailbox-native message identifier (the imap uid).
	ID uint32
	// From is the raw "From" header.
	From string
	// Subject is the decoded subject.
	Subject string
	// Body is a best-effort plain text rendition of the message.
	Body string
	// Date is the "Date" header or the zero time if it is missing.
	Date time.Time
}

// ParseEnvelope reads an RFC#5322 message. The text/plain part is preferred, html parts are
// converted to text if no plain part exists.
func ParseEnvelope(id uint32, r io.Reader) (*Envelope, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("could not read message %d: %w", id, err)
	}

	defer mr.Close()

	envelope := Envelope{
		ID:   id,
		From: mr.Header.Get("From"),
	}

	if subject, err := mr.Header.Subject(); err == nil {
		envelope.Subject = subject
	} else {
		envelope.Subject = mr.Header.Get("Subject")
	}

	if date, err := mr.Header.Date(); err == nil {
		envelope.Date = date
	}

	var plain, html string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}

		if err != nil {
			if plain != "" || html != "" {
				break
			}

			return nil, fmt.Errorf("could not read part of message %d: %w", id, err)
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := header.ContentType()

		b, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case plain == "" && (contentType == "text/plain" || contentType == ""):
			plain = string(b)
		case html == "" && contentType == "text/html":
			html = string(b)
		}
	}

	switch {
	case plain != "":
		envelope.Body = strings.TrimSpace(plain)
	case html != "":
		envelope.Body = HTMLToText(html)
	}

	return &envelope, nil
}
