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

package shell

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/mails"
	"github.com/lukasdietrich/newsletter/internal/models"
)

func infoSubscriber(ctx *cmdContext) error {
	subscriber, err := selectOneSubscriber(ctx)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(strings.TrimSuffix(Describe(subscriber), "\n"), "\n") {
		ctx.info("%s", line)
	}

	return nil
}

func addSubscriber(ctx *cmdContext) error {
	raw, err := ctx.ask("Email: ")
	if err != nil {
		return err
	}

	email, err := mails.ParseAddress(raw)
	if err != nil {
		return fmt.Errorf("could not add %q: %w", raw, err)
	}

	rawStatus, err := ctx.askWithDefault("Status [pending|approved|declined]: ", string(models.StatusPending))
	if err != nil {
		return err
	}

	status, err := models.ParseStatus(rawStatus)
	if err != nil {
		return err
	}

	subscriber := models.SubscriberEntity{
		Email:         email,
		Status:        status,
		SourceEmailID: models.StringPtr("shell"),
	}

	id, err := ctx.store.Add(log.WithSubscriber(ctx, email), &subscriber)
	if err != nil {
		return fmt.Errorf("could not add %q: %w", email, err)
	}

	ctx.info("Subscriber %q added with id=%d as %s.", email, id, status)
	return nil
}

func setStatus(status models.SubscriberStatus) cmdFunc {
	return func(ctx *cmdContext) error {
		subscribers, err := selectMultipleSubscribers(ctx)
		if err != nil {
			return err
		}

		for _, subscriber := range subscribers {
			if subscriber.Status == status {
				ctx.info("Subscriber %q is already %s.", subscriber.Email, status)
				continue
			}

			if _, err := ctx.store.Update(log.WithSubscriber(ctx, subscriber.Email), subscriber.Email, &status, nil); err != nil {
				return fmt.Errorf("could not update %q: %w", subscriber.Email, err)
			}

			ctx.info("Subscriber %q is now %s.", subscriber.Email, status)
		}

		return nil
	}
}

func editNotes(ctx *cmdContext) error {
	subscriber, err := selectOneSubscriber(ctx)
	if err != nil {
		return err
	}

	var current string
	if subscriber.Notes != nil {
		current = *subscriber.Notes
	}

	notes, err := ctx.askWithDefault("Notes: ", current)
	if err != nil {
		return err
	}

	if _, err := ctx.store.Update(log.WithSubscriber(ctx, subscriber.Email), subscriber.Email, nil, &notes); err != nil {
		return fmt.Errorf("could not update %q: %w", subscriber.Email, err)
	}

	ctx.info("Notes of %q updated.", subscriber.Email)
	return nil
}

func deleteSubscribers(ctx *cmdContext) error {
	subscribers, err := selectMultipleSubscribers(ctx)
	if err != nil {
		return err
	}

	answer, err := ctx.askWithDefault(fmt.Sprintf("Delete %d subscriber(s)? [y/N]: ", len(subscribers)), "n")
	if err != nil {
		return err
	}

	if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
		ctx.info("Cancelled.")
		return nil
	}

	for _, subscriber := range subscribers {
		removed, err := ctx.store.Remove(log.WithSubscriber(ctx, subscriber.Email), subscriber.Email)
		if err != nil {
			return fmt.Errorf("could not delete %q: %w", subscriber.Email, err)
		}

		if removed {
			ctx.info("Subscriber %q deleted.", subscriber.Email)
		}
	}

	return nil
}

func showStats(ctx *cmdContext) error {
	counts, err := ctx.store.Stats(ctx)
	if err != nil {
		return err
	}

	ctx.info("Total:    %d", counts.Total)
	ctx.info("Pending:  %d", counts.Pending)
	ctx.info("Approved: %d", counts.Approved)
	ctx.info("Declined: %d", counts.Declined)

	return nil
}

func listPlugins(ctx *cmdContext) error {
	plugins := ctx.plugins.List()
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Name < plugins[j].Name
	})

	for _, metadata := range plugins {
		state := "disabled"
		if ctx.plugins.Enabled(metadata.Name) {
			state = "enabled"
		}

		ctx.info("%-12s %-8s %-9s %s", metadata.Name, metadata.Version, state, metadata.Description)
	}

	return nil
}

func runPluginCommand(ctx *cmdContext) error {
	args := ctx.args

	if len(args) == 0 {
		command, err := ctx.ask("Command: ")
		if err != nil {
			return err
		}

		args = strings.Fields(command)
	}

	result, err := ctx.plugins.ExecuteCommand(ctx, args[0], args[1:])
	if err != nil {
		return err
	}

	if result.Message != "" {
		ctx.info("%s", result.Message)
	}

	keys := make([]string, 0, len(result.Data))
	for key := range result.Data {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		ctx.info("%s: %v", key, result.Data[key])
	}

	return nil
}

func selectOneSubscriber(ctx *cmdContext) (*models.SubscriberEntity, error) {
	subscribers, err := ctx.store.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	return ctx.selector.One(subscribers)
}

func selectMultipleSubscribers(ctx *cmdContext) ([]models.SubscriberEntity, error) {
	subscribers, err := ctx.store.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	return ctx.selector.Multi(subscribers)
}
