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

package review

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/viper"

	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/plugin"
)

func init() {
	viper.SetDefault("review.pagesize", 15)
}

// Store is the part of the subscriber store mutated by the review loop.
type Store interface {
	List(ctx context.Context, status *models.SubscriberStatus) ([]models.SubscriberEntity, error)
	UpdateStatus(ctx context.Context, id int64, status models.SubscriberStatus) error
	Remove(ctx context.Context, email string) (bool, error)
}

// Hooks is notified before and after a bulk action.
type Hooks interface {
	Run(ctx context.Context, hook plugin.Hook, data map[string]any) []plugin.Result
}

// Terminal reads keys and draws frames.
type Terminal interface {
	ReadKey() (KeyPress, error)
	Draw(frame string) error
}

// Loop drives the review state machine.
type Loop struct {
	store    Store
	hooks    Hooks
	pageSize int
}

// NewLoop creates a review loop. hooks may be nil.
//
// `review.pagesize` is the number of subscribers per page.
func NewLoop(store Store, hooks Hooks) *Loop {
	return &Loop{
		store:    store,
		hooks:    hooks,
		pageSize: viper.GetInt("review.pagesize"),
	}
}

// Run executes the loop until the user quits or the terminal is closed.
func (l *Loop) Run(ctx context.Context, terminal Terminal) error {
	state, effect := Init(l.pageSize)

	for {
		var event Event

		switch effect.Kind {
		case Quit:
			return nil

		case Reload:
			subscribers, err := l.store.List(ctx, nil)
			event = Reloaded{Subscribers: subscribers, Err: err}

		case Apply:
			count, err := l.apply(ctx, effect)
			event = Applied{Action: effect.Action, Count: count, Err: err}

		default:
			if err := terminal.Draw(Render(state)); err != nil {
				return err
			}

			key, err := terminal.ReadKey()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}

				return err
			}

			event = key
		}

		state, effect = Transition(state, event)
	}
}

// apply runs a bulk action. It stops at the first failing subscriber and returns the number of
// subscribers changed before.
func (l *Loop) apply(ctx context.Context, effect Effect) (int, error) {
	emails := make([]string, len(effect.Targets))
	for i, target := range effect.Targets {
		emails[i] = target.Email
	}

	data := map[string]any{
		"action":      effect.Action.String(),
		"subscribers": emails,
	}

	l.runHook(ctx, plugin.PreApprove, data)

	count := 0
	for _, target := range effect.Targets {
		subscriberCtx := log.WithSubscriber(ctx, target.Email)

		if err := l.applyOne(subscriberCtx, effect.Action, target); err != nil {
			log.ErrorContext(subscriberCtx).
				Err(err).
				Stringer("action", effect.Action).
				Msg("could not apply review action")

			return count, err
		}

		log.InfoContext(subscriberCtx).
			Stringer("action", effect.Action).
			Msg("review action applied")

		count++
	}

	data["count"] = count
	l.runHook(ctx, plugin.PostApprove, data)

	return count, nil
}

func (l *Loop) applyOne(ctx context.Context, action Action, target models.SubscriberEntity) error {
	if status, ok := action.Status(); ok {
		return l.store.UpdateStatus(ctx, target.ID, status)
	}

	if action != Delete {
		return fmt.Errorf("unknown review action %v", action)
	}

	removed, err := l.store.Remove(ctx, target.Email)
	if err == nil && !removed {
		log.WarnContext(ctx).Msg("subscriber was already removed")
	}

	return err
}

func (l *Loop) runHook(ctx context.Context, hook plugin.Hook, data map[string]any) {
	if l.hooks != nil {
		l.hooks.Run(ctx, hook, data)
	}
}
