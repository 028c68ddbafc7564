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
	"errors"
	"fmt"
	"strings"

	"github.com/lukasdietrich/newsletter/internal/models"
)

// ErrUnsupportedSource is returned for unknown migration sources.
var ErrUnsupportedSource = errors.New("unsupported migration source")

// Source is a third-party service subscribers are exported from.
type Source string

const (
	Mailchimp  Source = "Mailchimp"
	ConvertKit Source = "ConvertKit"
	Substack   Source = "Substack"
	Beehiiv    Source = "Beehiiv"
	Generic    Source = "Generic"
	JSON       Source = "Json"
)

// Sources lists every supported source.
var Sources = []Source{Mailchimp, ConvertKit, Substack, Beehiiv, Generic, JSON}

// ParseSource parses a source name case-insensitively. "csv" is an alias for the generic source.
func ParseSource(raw string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mailchimp":
		return Mailchimp, nil
	case "convertkit":
		return ConvertKit, nil
	case "substack":
		return Substack, nil
	case "beehiiv":
		return Beehiiv, nil
	case "generic", "csv":
		return Generic, nil
	case "json":
		return JSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedSource, raw)
	}
}

// Profile maps the columns of an export to subscriber fields. Empty columns are not mapped.
type Profile struct {
	EmailColumn  string
	NameColumn   string
	StatusColumn string
	DateColumn   string
	TagsColumn   string
	Delimiter    rune
}

// Overrides replaces single columns of the default profile of a source.
type Overrides struct {
	EmailColumn  string
	NameColumn   string
	StatusColumn string
	DateColumn   string
	TagsColumn   string
	Delimiter    rune
}

// OverridesFromMap reads overrides from column mappings. The keys are "email", "name", "status",
// "date", "tags" and "delimiter". The delimiter must be a single character or "tab".
func OverridesFromMap(mappings map[string]string) (Overrides, error) {
	var overrides Overrides

	for key, value := range mappings {
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "email":
			overrides.EmailColumn = value
		case "name":
			overrides.NameColumn = value
		case "status":
			overrides.StatusColumn = value
		case "date":
			overrides.DateColumn = value
		case "tags":
			overrides.TagsColumn = value
		case "delimiter":
			delimiter, err := parseDelimiter(value)
			if err != nil {
				return Overrides{}, err
			}

			overrides.Delimiter = delimiter
		default:
			return Overrides{}, fmt.Errorf("unknown column mapping %q", key)
		}
	}

	return overrides, nil
}

func parseDelimiter(raw string) (rune, error) {
	if strings.EqualFold(raw, "tab") || raw == `\t` {
		return '\t', nil
	}

	runes := []rune(raw)
	if len(runes) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", raw)
	}

	return runes[0], nil
}

// ProfileFor returns the default column mapping of a source with the overrides applied.
func ProfileFor(source Source, overrides Overrides) Profile {
	profile := defaultProfile(source)

	override(&profile.EmailColumn, overrides.EmailColumn)
	override(&profile.NameColumn, overrides.NameColumn)
	override(&profile.StatusColumn, overrides.StatusColumn)
	override(&profile.DateColumn, overrides.DateColumn)
	override(&profile.TagsColumn, overrides.TagsColumn)

	if overrides.Delimiter != 0 {
		profile.Delimiter = overrides.Delimiter
	}

	return profile
}

func defaultProfile(source Source) Profile {
	switch source {
	case Mailchimp:
		return Profile{"Email Address", "FNAME", "Member Status", "Timestamp Signup", "Tags", ','}
	case ConvertKit:
		return Profile{"email", "first_name", "state", "created_at", "tags", ','}
	case Substack:
		return Profile{"email", "name", "subscription_status", "created_at", "", ','}
	case Beehiiv:
		return Profile{"email", "name", "status", "created", "tags", ','}
	case JSON:
		return Profile{"email", "name", "status", "created_at", "tags", ','}
	default:
		return Profile{"email", "name", "", "", "", ','}
	}
}

func override(column *string, value string) {
	if value != "" {
		*column = value
	}
}

// columns returns the mapped columns of the profile.
func (p Profile) columns() []string {
	var columns []string

	for _, column := range []string{p.EmailColumn, p.NameColumn, p.StatusColumn, p.DateColumn, p.TagsColumn} {
		if column != "" {
			columns = append(columns, column)
		}
	}

	return columns
}

// MapStatus translates the status vocabulary of a source. Unknown or missing values map to
// pending, so nothing is ever approved by accident.
func MapStatus(source Source, raw string) models.SubscriberStatus {
	status := strings.ToLower(strings.TrimSpace(raw))

	var approved, declined []string

	switch source {
	case Mailchimp:
		approved, declined = []string{"subscribed"}, []string{"unsubscribed", "cleaned"}
	case ConvertKit:
		approved, declined = []string{"active", "subscribed"}, []string{"unsubscribed", "cancelled"}
	case Substack, Beehiiv:
		approved, declined = []string{"active", "subscribed"}, []string{"unsubscribed"}
	default:
		approved, declined = []string{"active", "subscribed", "approved"}, []string{"unsubscribed", "declined", "cancelled"}
	}

	switch {
	case contains(approved, status):
		return models.StatusApproved
	case contains(declined, status):
		return models.StatusDeclined
	default:
		return models.StatusPending
	}
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}

	return false
}
