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

// Package ingest turns subscription requests in a mailbox into pending subscribers.
package ingest

import (
	"context"
	"errors"
	"strconv"

	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/mails"
	"github.com/lukasdietrich/newsletter/internal/metrics"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/plugin"
	"github.com/lukasdietrich/newsletter/internal/store"
)

const origin = "imap"

// Hooks is notified before and after a fetch pass.
type Hooks interface {
	Run(ctx context.Context, hook plugin.Hook, data map[string]any) []plugin.Result
}

// SelectFunc narrows down the candidates before they are committed. It is used for interactive
// review of the candidates.
type SelectFunc func(context.Context, []models.SubscriberEntity) ([]models.SubscriberEntity, error)

// Result summarizes a fetch pass.
type Result struct {
	Fetched    int
	Candidates []models.SubscriberEntity
	Added      []models.SubscriberEntity
	Existing   []string
	Failed     []string
}

// Pipeline fetches unseen emails, extracts subscribers and commits them to the store.
type Pipeline struct {
	dialer Dialer
	store  *store.Store
	hooks  Hooks
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(dialer Dialer, store *store.Store, hooks Hooks) *Pipeline {
	return &Pipeline{
		dialer: dialer,
		store:  store,
		hooks:  hooks,
	}
}

// Run executes a single pass. Connection and authentication failures abort the pass, failures of
// single messages or subscribers are logged and skipped. The mailbox is closed on every path.
func (p *Pipeline) Run(
	ctx context.Context,
	server *config.MailServer,
	password string,
	selectFn SelectFunc,
) (result *Result, err error) {
	ctx = log.WithOrigin(ctx, origin)

	p.runHook(ctx, plugin.PreFetch, map[string]any{"server": server.Address()})

	mailbox, err := p.dialer.Dial(ctx, server, password)
	if err != nil {
		return nil, err
	}

	defer func() {
		if closeErr := mailbox.Close(); closeErr != nil {
			log.WarnContext(ctx).Err(closeErr).Msg("could not close mailbox")
		}
	}()

	envelopes, err := mailbox.FetchUnseen(ctx)
	if err != nil {
		return nil, err
	}

	metrics.RecordFetched(len(envelopes))

	result = &Result{
		Fetched:    len(envelopes),
		Candidates: ExtractCandidates(ctx, envelopes),
	}

	if len(result.Candidates) == 0 {
		log.InfoContext(ctx).Int("fetched", result.Fetched).Msg("no new subscription emails found")
		return result, nil
	}

	selected := result.Candidates
	if selectFn != nil {
		if selected, err = selectFn(ctx, result.Candidates); err != nil {
			return nil, err
		}
	}

	if err := p.commit(ctx, selected, result); err != nil {
		return nil, err
	}

	// Only subscription requests are flagged, unrelated mail stays unread for the owner.
	if err := mailbox.MarkSeen(ctx, intentIDs(envelopes)); err != nil {
		log.WarnContext(ctx).Err(err).Msg("could not mark emails as processed")
	}

	p.runHook(ctx, plugin.PostFetch, map[string]any{
		"fetched":  result.Fetched,
		"added":    len(result.Added),
		"existing": len(result.Existing),
	})

	return result, nil
}

// Commit inserts the candidates into the store and returns the inserted subset. Candidates already
// present are skipped.
func (p *Pipeline) Commit(ctx context.Context, candidates []models.SubscriberEntity) ([]models.SubscriberEntity, error) {
	var result Result

	if err := p.commit(log.WithOrigin(ctx, origin), candidates, &result); err != nil {
		return nil, err
	}

	return result.Added, nil
}

func (p *Pipeline) commit(ctx context.Context, candidates []models.SubscriberEntity, result *Result) error {
	for _, candidate := range candidates {
		subscriberCtx := log.WithSubscriber(ctx, candidate.Email)

		exists, err := p.store.Exists(ctx, candidate.Email)
		if err != nil {
			return err
		}

		if exists {
			log.InfoContext(subscriberCtx).Msg("subscriber already exists")
			result.Existing = append(result.Existing, candidate.Email)
			continue
		}

		if _, err := p.store.Add(ctx, &candidate); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				result.Existing = append(result.Existing, candidate.Email)
				continue
			}

			log.ErrorContext(subscriberCtx).Err(err).Msg("could not add subscriber")
			result.Failed = append(result.Failed, candidate.Email)
			continue
		}

		log.InfoContext(subscriberCtx).Msg("added new subscriber")
		metrics.RecordSubscriberAdded(origin)
		result.Added = append(result.Added, candidate)
	}

	return nil
}

func (p *Pipeline) runHook(ctx context.Context, hook plugin.Hook, data map[string]any) {
	if p.hooks == nil {
		return
	}

	for _, result := range p.hooks.Run(ctx, hook, data) {
		if !result.Success {
			log.WarnContext(ctx).Str("hook", hook.String()).Str("message", result.Message).Msg("plugin hook failed")
		}
	}
}

// ExtractCandidates returns a pending subscriber for every email with subscription intent and a
// valid sender address. The first email of an address wins, later ones are ignored.
func ExtractCandidates(ctx context.Context, envelopes []*mails.Envelope) []models.SubscriberEntity {
	var (
		candidates []models.SubscriberEntity
		seen       = make(map[string]bool)
	)

	for _, envelope := range envelopes {
		if !IsSubscriptionIntent(envelope) {
			log.DebugContext(ctx).Uint32("uid", envelope.ID).Msg("ignoring email without subscription intent")
			continue
		}

		email, err := mails.ParseAddress(envelope.From)
		if err != nil {
			log.WarnContext(ctx).Str("from", envelope.From).Err(err).Msg("skipping invalid sender address")
			continue
		}

		if seen[email] {
			continue
		}

		seen[email] = true

		candidates = append(candidates, models.SubscriberEntity{
			Email:         email,
			Status:        models.StatusPending,
			SourceEmailID: models.StringPtr(strconv.FormatUint(uint64(envelope.ID), 10)),
		})
	}

	return candidates
}

func intentIDs(envelopes []*mails.Envelope) []uint32 {
	var ids []uint32

	for _, envelope := range envelopes {
		if IsSubscriptionIntent(envelope) {
			ids = append(ids, envelope.ID)
		}
	}

	return ids
}
