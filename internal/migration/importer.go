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

// Package migration imports subscribers from the exports of third-party newsletter services.
package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/mails"
	"github.com/lukasdietrich/newsletter/internal/metrics"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/store"
)

const origin = "migration"

// Result summarizes an import.
type Result struct {
	TotalProcessed       int                       `json:"total_processed"`
	SuccessfullyImported int                       `json:"successfully_imported"`
	SkippedDuplicates    int                       `json:"skipped_duplicates"`
	Errors               []string                  `json:"errors"`
	Imported             []models.SubscriberEntity `json:"imported_subscribers,omitempty"`
}

// Importer writes parsed subscribers to the store.
type Importer struct {
	store *store.Store
}

// NewImporter creates a new Importer.
func NewImporter(store *store.Store) *Importer {
	return &Importer{store: store}
}

// Import adds every parsed subscriber that is not yet known. Known emails are counted as skipped
// duplicates, rows without a valid email are reported as errors. Neither aborts the import.
func (i *Importer) Import(ctx context.Context, source Source, parsed []ImportedSubscriber) (*Result, error) {
	ctx = log.WithOrigin(ctx, origin)

	result := Result{
		TotalProcessed: len(parsed),
		Errors:         []string{},
	}

	for _, imported := range parsed {
		subscriber, err := Convert(source, imported)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", imported.Row, err))
			continue
		}

		exists, err := i.store.Exists(ctx, subscriber.Email)
		if err != nil {
			return nil, err
		}

		if exists {
			log.DebugContext(log.WithSubscriber(ctx, subscriber.Email)).Msg("skipped duplicate")
			result.SkippedDuplicates++
			continue
		}

		if _, err := i.store.Add(ctx, subscriber); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: could not save %s: %v", imported.Row, subscriber.Email, err))
			continue
		}

		metrics.RecordSubscriberAdded(origin)
		result.SuccessfullyImported++
		result.Imported = append(result.Imported, *subscriber)
	}

	log.InfoContext(ctx).
		Str("source", string(source)).
		Int("processed", result.TotalProcessed).
		Int("imported", result.SuccessfullyImported).
		Int("duplicates", result.SkippedDuplicates).
		Int("errors", len(result.Errors)).
		Msg("migration completed")

	return &result, nil
}

// Convert turns a parsed row into a subscriber. The status is mapped from the vocabulary of the
// source and the provenance is recorded in the notes.
func Convert(source Source, imported ImportedSubscriber) (*models.SubscriberEntity, error) {
	if imported.Email == "" {
		return nil, fmt.Errorf("email field is required")
	}

	email := mails.NormalizeAddress(imported.Email)
	if !mails.IsValidAddress(email) {
		return nil, fmt.Errorf("%w: %q", mails.ErrInvalidAddressFormat, imported.Email)
	}

	subscriber := models.SubscriberEntity{
		Email:         email,
		Status:        MapStatus(source, imported.Status),
		SourceEmailID: models.StringPtr("migration-" + string(source)),
		Notes:         models.StringPtr(notes(source, imported)),
	}

	if imported.SubscribedAt != nil {
		subscriber.SubscribedAt = *imported.SubscribedAt

		if subscriber.Status != models.StatusPending {
			approvedAt := *imported.SubscribedAt
			subscriber.ApprovedAt = &approvedAt
		}
	}

	return &subscriber, nil
}

func notes(source Source, imported ImportedSubscriber) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Migrated from %s", source)

	if len(imported.Tags) > 0 {
		fmt.Fprintf(&b, " | Tags: %s", strings.Join(imported.Tags, ", "))
	}

	if len(imported.CustomFields) > 0 {
		// map keys are marshaled in sorted order
		custom, _ := json.Marshal(imported.CustomFields)
		fmt.Fprintf(&b, " | Custom fields: %s", custom)
	}

	return b.String()
}
