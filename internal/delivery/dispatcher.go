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

	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/models"
)

// Subscribers lists subscribers by status.
type Subscribers interface {
	List(ctx context.Context, status *models.SubscriberStatus) ([]models.SubscriberEntity, error)
}

// TransportFactory opens the configured transport.
type TransportFactory func(ctx context.Context, settings *config.Settings) (Transport, error)

// Dispatcher opens a transport for every pass and sends to the approved subscribers of the store.
type Dispatcher struct {
	settings     *config.Settings
	subscribers  Subscribers
	hooks        Hooks
	clock        Clock
	newTransport TransportFactory
}

// NewDispatcher creates a dispatcher using the configured transport. hooks may be nil.
func NewDispatcher(settings *config.Settings, subscribers Subscribers, hooks Hooks) *Dispatcher {
	return &Dispatcher{
		settings:     settings,
		subscribers:  subscribers,
		hooks:        hooks,
		clock:        SystemClock,
		newTransport: NewTransport,
	}
}

// Check reports config.ErrConfigMissing, if the newsletter is disabled or the transport lacks
// credentials. Nothing is sent or opened.
func (d *Dispatcher) Check() error {
	return CheckTransport(d.settings)
}

// Send sends the newsletter to every approved subscriber at the configured rate. The configuration
// is checked before any subscriber is listed.
func (d *Dispatcher) Send(ctx context.Context, newsletter *models.Newsletter, progress ProgressFunc) (*Report, error) {
	if err := d.Check(); err != nil {
		return nil, err
	}

	approved := models.StatusApproved

	subscribers, err := d.subscribers.List(ctx, &approved)
	if err != nil {
		return nil, fmt.Errorf("could not list approved subscribers: %w", err)
	}

	if len(subscribers) == 0 {
		return d.sender(nil).SendToApproved(ctx, newsletter, nil, progress), nil
	}

	transport, err := d.newTransport(ctx, d.settings)
	if err != nil {
		return nil, err
	}

	return d.sender(transport).SendToApproved(ctx, newsletter, subscribers, progress), nil
}

// SendTest sends the newsletter to a single address.
func (d *Dispatcher) SendTest(ctx context.Context, newsletter *models.Newsletter, address string) error {
	if err := d.Check(); err != nil {
		return err
	}

	transport, err := d.newTransport(ctx, d.settings)
	if err != nil {
		return err
	}

	return d.sender(transport).SendTest(ctx, newsletter, address)
}

func (d *Dispatcher) sender(transport Transport) *Sender {
	return NewSender(d.settings, transport, NewRateLimiter(d.settings.RateLimit, d.clock), d.hooks)
}
