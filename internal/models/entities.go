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

package models

import (
	"fmt"
	"strings"
	"time"
)

// SubscriberStatus is the review state of a subscriber.
type SubscriberStatus string

const (
	// StatusPending is a newly discovered subscriber, that has not been reviewed yet.
	StatusPending SubscriberStatus = "pending"
	// StatusApproved is a subscriber cleared to receive newsletters.
	StatusApproved SubscriberStatus = "approved"
	// StatusDeclined is an explicitly rejected subscriber. It is kept for deduplication.
	StatusDeclined SubscriberStatus = "declined"
)

// Statuses lists every status in display order.
var Statuses = []SubscriberStatus{StatusPending, StatusApproved, StatusDeclined}

// ParseStatus parses a status case-insensitively.
func ParseStatus(raw string) (SubscriberStatus, error) {
	status := SubscriberStatus(strings.ToLower(strings.TrimSpace(raw)))

	switch status {
	case StatusPending, StatusApproved, StatusDeclined:
		return status, nil
	default:
		return "", fmt.Errorf("unknown subscriber status %q", raw)
	}
}

// Title returns the capitalized name of the status.
func (s SubscriberStatus) Title() string {
	if s == "" {
		return ""
	}

	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// SubscriberEntity is a row of the "subscribers" table.
type SubscriberEntity struct {
	ID            int64            `db:"id" json:"id"`
	Email         string           `db:"email" json:"email"`
	Status        SubscriberStatus `db:"status" json:"status"`
	SubscribedAt  time.Time        `db:"subscribed_at" json:"subscribed_at"`
	ApprovedAt    *time.Time       `db:"approved_at" json:"approved_at"`
	SourceEmailID *string          `db:"source_email_id" json:"source_email_id"`
	Notes         *string          `db:"notes" json:"notes"`
}

// StatusCounts holds the number of subscribers per status.
type StatusCounts struct {
	Total    int64 `db:"total" json:"total"`
	Pending  int64 `db:"pending" json:"pending"`
	Approved int64 `db:"approved" json:"approved"`
	Declined int64 `db:"declined" json:"declined"`
}

const (
	// TokenMarker is replaced by the unsubscribe token of the recipient.
	TokenMarker = "{{unsubscribe_token}}"
	// URLMarker is replaced by the unsubscribe url of the recipient.
	URLMarker = "{{unsubscribe_url}}"
)

// Newsletter is a composed issue. The bodies may contain the markers "{{unsubscribe_token}}" and
// "{{unsubscribe_url}}", that are replaced for every recipient at send time.
type Newsletter struct {
	Subject     string    `json:"subject"`
	HTMLContent string    `json:"html_content"`
	TextContent string    `json:"text_content"`
	CreatedAt   time.Time `json:"created_at"`
}

// StringPtr returns a pointer to s or nil if s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

// StringValue dereferences s or returns an empty string.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
