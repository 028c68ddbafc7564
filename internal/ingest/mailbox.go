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

package ingest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/mails"
)

var (
	// ErrNetworkFailed is returned when the mailbox server cannot be reached.
	ErrNetworkFailed = errors.New("could not connect to mailbox")
	// ErrAuthFailed is returned when the mailbox server rejects the credentials.
	ErrAuthFailed = errors.New("mailbox login failed")
)

const inbox = "INBOX"

// Mailbox is an open, authenticated session on the inbox.
type Mailbox interface {
	// FetchUnseen returns all unseen messages without marking them as seen. Messages that cannot
	// be parsed are logged and skipped.
	FetchUnseen(context.Context) ([]*mails.Envelope, error)
	// MarkSeen flags the messages as seen.
	MarkSeen(context.Context, []uint32) error
	// Close logs out and closes the connection.
	Close() error
}

// Dialer opens mailbox sessions.
type Dialer interface {
	Dial(ctx context.Context, server *config.MailServer, password string) (Mailbox, error)
}

// IMAPDialer connects to IMAP servers.
type IMAPDialer struct{}

// NewIMAPDialer creates a Dialer for IMAP servers.
func NewIMAPDialer() Dialer {
	return IMAPDialer{}
}

// Dial connects, logs in and selects the inbox.
func (IMAPDialer) Dial(ctx context.Context, server *config.MailServer, password string) (Mailbox, error) {
	var (
		c   *client.Client
		err error
	)

	log.InfoContext(ctx).
		Str("server", server.Address()).
		Bool("tls", server.TLS()).
		Msg("connecting to imap server")

	if server.TLS() {
		c, err = client.DialTLS(server.Address(), &tls.Config{ServerName: server.Server})
	} else {
		c, err = client.Dial(server.Address())
	}

	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrNetworkFailed, server.Address(), err)
	}

	if err := c.Login(server.Username, password); err != nil {
		closeClient(ctx, c)
		return nil, fmt.Errorf("%w for %q: %v", ErrAuthFailed, server.Username, err)
	}

	if _, err := c.Select(inbox, false); err != nil {
		closeClient(ctx, c)
		return nil, fmt.Errorf("could not select %s: %w", inbox, err)
	}

	return &imapMailbox{client: c}, nil
}

type imapMailbox struct {
	client *client.Client
}

func (m *imapMailbox) FetchUnseen(ctx context.Context) ([]*mails.Envelope, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("could not search for unseen emails: %w", err)
	}

	if len(uids) == 0 {
		return nil, nil
	}

	log.DebugContext(ctx).Int("count", len(uids)).Msg("found unseen emails")

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- m.client.UidFetch(seqset, items, messages)
	}()

	var envelopes []*mails.Envelope

	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			log.WarnContext(ctx).Uint32("uid", msg.Uid).Msg("server did not return a message body")
			continue
		}

		envelope, err := mails.ParseEnvelope(msg.Uid, body)
		if err != nil {
			log.WarnContext(ctx).Uint32("uid", msg.Uid).Err(err).Msg("skipping unparsable email")
			continue
		}

		envelopes = append(envelopes, envelope)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("could not fetch unseen emails: %w", err)
	}

	return envelopes, nil
}

func (m *imapMailbox) MarkSeen(ctx context.Context, ids []uint32) error {
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	if err := m.client.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("could not mark %d emails as seen: %w", len(ids), err)
	}

	log.DebugContext(ctx).Int("count", len(ids)).Msg("marked emails as seen")
	return nil
}

func (m *imapMailbox) Close() error {
	return m.client.Logout()
}

func closeClient(ctx context.Context, c *client.Client) {
	if err := c.Logout(); err != nil {
		log.DebugContext(ctx).Err(err).Msg("could not log out after failed setup")
	}
}
