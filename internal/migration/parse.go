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

package migration

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// dateLayouts are tried in order. RFC 3339 is the last resort.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"01-02-2006",
	"02-01-2006",
	time.RFC3339,
}

// ImportedSubscriber is a single parsed row of an export.
type ImportedSubscriber struct {
	Row          int               `json:"row"`
	Email        string            `json:"email"`
	Name         string            `json:"name,omitempty"`
	Status       string            `json:"status,omitempty"`
	SubscribedAt *time.Time        `json:"subscribed_at,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// Parse reads an export of a source. JSON sources expect an array of objects or a single object,
// every other source expects CSV with a header line. Rows are returned even if they lack an email,
// so that Import can report them.
func Parse(source Source, r io.Reader, overrides Overrides) ([]ImportedSubscriber, error) {
	profile := ProfileFor(source, overrides)

	if source == JSON {
		return parseJSON(r, profile)
	}

	return parseCSV(r, profile)
}

// Preview returns at most limit parsed subscribers. A limit <= 0 returns all of them.
func Preview(parsed []ImportedSubscriber, limit int) []ImportedSubscriber {
	if limit <= 0 || limit >= len(parsed) {
		return parsed
	}

	return parsed[:limit]
}

func parseCSV(r io.Reader, profile Profile) ([]ImportedSubscriber, error) {
	reader := csv.NewReader(r)
	reader.Comma = profile.Delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}

		return nil, fmt.Errorf("could not read csv header: %w", err)
	}

	for i := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(headers[i], "\ufeff"))
	}

	var parsed []ImportedSubscriber

	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("could not read csv row %d: %w", row, err)
		}

		if isBlank(record) {
			continue
		}

		fields := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(record) {
				fields[header] = strings.TrimSpace(record[i])
			}
		}

		parsed = append(parsed, extract(row, fields, profile))
	}

	return parsed, nil
}

func parseJSON(r io.Reader, profile Profile) ([]ImportedSubscriber, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var document any
	if err := decoder.Decode(&document); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	var objects []map[string]any

	switch value := document.(type) {
	case []any:
		for _, item := range value {
			if object, ok := item.(map[string]any); ok {
				objects = append(objects, object)
			}
		}
	case map[string]any:
		objects = append(objects, value)
	default:
		return nil, errors.New("json must be an object or an array of objects")
	}

	parsed := make([]ImportedSubscriber, 0, len(objects))

	for i, object := range objects {
		fields := make(map[string]string, len(object))

		for key, value := range object {
			if s, ok := jsonString(value); ok {
				fields[key] = strings.TrimSpace(s)
			}
		}

		parsed = append(parsed, extract(i+1, fields, profile))
	}

	return parsed, nil
}

func jsonString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return fmt.Sprint(v), true
	case []any:
		var parts []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}

		return strings.Join(parts, ","), true
	default:
		return "", false
	}
}

func extract(row int, fields map[string]string, profile Profile) ImportedSubscriber {
	imported := ImportedSubscriber{
		Row:    row,
		Email:  lookup(fields, profile.EmailColumn, "email"),
		Name:   lookup(fields, profile.NameColumn, "name"),
		Status: lookup(fields, profile.StatusColumn, "status"),
	}

	if date := lookup(fields, profile.DateColumn, "date"); date != "" {
		imported.SubscribedAt = ParseDate(date)
	}

	if tags := lookup(fields, profile.TagsColumn, "tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				imported.Tags = append(imported.Tags, tag)
			}
		}
	}

	mapped := profile.columns()

	for key, value := range fields {
		if value != "" && !contains(mapped, key) {
			if imported.CustomFields == nil {
				imported.CustomFields = make(map[string]string)
			}

			imported.CustomFields[key] = value
		}
	}

	return imported
}

// lookup returns the first non-empty value of the column, the fallback key or a key matching the
// fallback case-insensitively.
func lookup(fields map[string]string, column, fallback string) string {
	if column != "" {
		if value := fields[column]; value != "" {
			return value
		}
	}

	if value := fields[fallback]; value != "" {
		return value
	}

	for key, value := range fields {
		if value != "" && strings.EqualFold(key, fallback) {
			return value
		}
	}

	return ""
}

// ParseDate tries the known date layouts in order and returns nil if none matches.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}

	return nil
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}

	return true
}
