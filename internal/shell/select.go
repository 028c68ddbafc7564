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
	"errors"
	"fmt"
	"strings"

	"github.com/ktr0731/go-fuzzyfinder"

	"github.com/lukasdietrich/newsletter/internal/models"
)

// ErrNoSubscribers is returned if there is nothing to select from.
var ErrNoSubscribers = errors.New("there are no subscribers")

// Selector lets the user pick subscribers.
type Selector interface {
	One(subscribers []models.SubscriberEntity) (*models.SubscriberEntity, error)
	Multi(subscribers []models.SubscriberEntity) ([]models.SubscriberEntity, error)
}

// FuzzySelector picks subscribers with a fuzzy finder on the terminal.
type FuzzySelector struct{}

// One picks a single subscriber.
func (FuzzySelector) One(subscribers []models.SubscriberEntity) (*models.SubscriberEntity, error) {
	if len(subscribers) == 0 {
		return nil, ErrNoSubscribers
	}

	index, err := fuzzyfinder.Find(subscribers,
		mapSubscriberSearch(subscribers),
		fuzzyfinder.WithPreviewWindow(previewSubscriber(subscribers)))
	if err != nil {
		return nil, err
	}

	return &subscribers[index], nil
}

// Multi picks any number of subscribers. Tab toggles the selection.
func (FuzzySelector) Multi(subscribers []models.SubscriberEntity) ([]models.SubscriberEntity, error) {
	if len(subscribers) == 0 {
		return nil, ErrNoSubscribers
	}

	indices, err := fuzzyfinder.FindMulti(subscribers,
		mapSubscriberSearch(subscribers),
		fuzzyfinder.WithPreviewWindow(previewSubscriber(subscribers)))
	if err != nil {
		return nil, err
	}

	selected := make([]models.SubscriberEntity, len(indices))
	for i, index := range indices {
		selected[i] = subscribers[index]
	}

	return selected, nil
}

func mapSubscriberSearch(subscribers []models.SubscriberEntity) func(int) string {
	return func(i int) string {
		return subscribers[i].Email
	}
}

func previewSubscriber(subscribers []models.SubscriberEntity) func(int, int, int) string {
	return func(i, _, _ int) string {
		if i < 0 {
			return ""
		}

		return Describe(&subscribers[i])
	}
}

// Describe formats the fields of a subscriber on multiple lines.
func Describe(subscriber *models.SubscriberEntity) string {
	var b strings.Builder

	fmt.Fprintf(&b, "ID:         %d\n", subscriber.ID)
	fmt.Fprintf(&b, "Email:      %s\n", subscriber.Email)
	fmt.Fprintf(&b, "Status:     %s\n", subscriber.Status.Title())
	fmt.Fprintf(&b, "Subscribed: %s\n", subscriber.SubscribedAt.Format("2006-01-02 15:04"))

	if subscriber.ApprovedAt != nil {
		fmt.Fprintf(&b, "Approved:   %s\n", subscriber.ApprovedAt.Format("2006-01-02 15:04"))
	}

	if subscriber.SourceEmailID != nil {
		fmt.Fprintf(&b, "Source:     %s\n", *subscriber.SourceEmailID)
	}

	if subscriber.Notes != nil {
		fmt.Fprintf(&b, "Notes:      %s\n", *subscriber.Notes)
	}

	return b.String()
}
