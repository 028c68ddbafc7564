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

// Package delivery sends newsletters to approved subscribers. Sends are rate limited, personalized
// per recipient and summarized in a Report.
package delivery

import (
	"context"
	"fmt"

	"github.com/emersion/go-message/mail"

	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/mails"
	"github.com/lukasdietrich/newsletter/internal/metrics"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/plugin"
)

const defaultSenderName = "Newsletter"

// Hooks runs plugin hooks.
type Hooks interface {
	Run(ctx context.Context, hook plugin.Hook, data map[string]any) []plugin.Result
}

// ProgressFunc is called after every attempted send.
type ProgressFunc func(done, total int)

// Sender dispatches newsletters one recipient at a time.
type Sender struct {
	transport Transport
	limiter   *RateLimiter
	hooks     Hooks
	from      *mail.Address
	mailbox   string
}

// NewSender creates a sender. The "From" header uses the configured sender name and the SMTP
// username, which is also the mailbox unsubscribe requests are sent to.
func NewSender(settings *config.Settings, transport Transport, limiter *RateLimiter, hooks Hooks) *Sender {
	mailbox := settings.SubscribeEmail
	if settings.SMTP != nil && settings.SMTP.Username != "" {
		mailbox = settings.SMTP.Username
	}

	name := settings.SenderName
	if name == "" {
		name = defaultSenderName
	}

	return &Sender{
		transport: transport,
		limiter:   limiter,
		hooks:     hooks,
		from:      &mail.Address{Name: name, Address: mailbox},
		mailbox:   mailbox,
	}
}

// SendToApproved sends the newsletter to every approved subscriber in input order. A failed send
// is recorded in the report and does not stop the batch. The transport is closed afterwards.
func (s *Sender) SendToApproved(
	ctx context.Context,
	newsletter *models.Newsletter,
	subscribers []models.SubscriberEntity,
	progress ProgressFunc,
) *Report {
	var approved []models.SubscriberEntity
	for _, subscriber := range subscribers {
		if subscriber.Status == models.StatusApproved {
			approved = append(approved, subscriber)
		}
	}

	report := NewReport(len(approved))

	if len(approved) == 0 {
		log.WarnContext(ctx).Msg("no approved subscribers found")
		report.Complete()
		return report
	}

	s.runHook(ctx, plugin.PreSend, map[string]any{
		"subject":     newsletter.Subject,
		"subscribers": len(approved),
	})

	log.InfoContext(ctx).
		Str("subject", newsletter.Subject).
		Int("subscribers", len(approved)).
		Msg("sending newsletter")

	defer s.close(ctx)

	for i, subscriber := range approved {
		s.limiter.Wait(ctx)

		subscriberCtx := log.WithSubscriber(ctx, subscriber.Email)

		if err := s.send(subscriberCtx, newsletter, subscriber.Email); err != nil {
			log.WarnContext(subscriberCtx).Err(err).Msg("send failed")
			report.AddError(subscriber.Email, fmt.Errorf("failed to send to %s: %w", subscriber.Email, err))
			metrics.RecordSend(false)
		} else {
			log.DebugContext(subscriberCtx).Msg("sent")
			report.AddSuccess()
			metrics.RecordSend(true)
		}

		if progress != nil {
			progress(i+1, len(approved))
		}
	}

	report.Complete()

	log.InfoContext(ctx).
		Int("total", report.TotalSubscribers).
		Int("successful", report.SuccessfulSends).
		Int("failed", report.FailedSends).
		Dur("duration", report.Duration()).
		Msg("newsletter sent")

	s.runHook(ctx, plugin.PostSend, map[string]any{
		"subject":    newsletter.Subject,
		"total":      report.TotalSubscribers,
		"successful": report.SuccessfulSends,
		"failed":     report.FailedSends,
	})

	return report
}

// SendTest sends the newsletter to a single address, bypassing the approval filter and the rate
// limiter.
func (s *Sender) SendTest(ctx context.Context, newsletter *models.Newsletter, address string) error {
	defer s.close(ctx)

	parsed, err := mails.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("%w: %q", err, address)
	}

	if err := s.send(log.WithSubscriber(ctx, parsed), newsletter, parsed); err != nil {
		return fmt.Errorf("could not send test email: %w", err)
	}

	return nil
}

func (s *Sender) send(ctx context.Context, newsletter *models.Newsletter, address string) error {
	personalized := Personalize(newsletter, s.mailbox, NewToken(address))
	return s.transport.Send(ctx, NewMessage(s.from, address, personalized))
}

func (s *Sender) close(ctx context.Context) {
	if err := s.transport.Close(); err != nil {
		log.WarnContext(ctx).Err(err).Msg("could not close transport")
	}
}

func (s *Sender) runHook(ctx context.Context, hook plugin.Hook, data map[string]any) {
	if s.hooks == nil {
		return
	}

	for _, result := range s.hooks.Run(ctx, hook, data) {
		if !result.Success {
			log.WarnContext(ctx).
				Stringer("hook", hook).
				Str("message", result.Message).
				Msg("plugin hook failed")
		}
	}
}
