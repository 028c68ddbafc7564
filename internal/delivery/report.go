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
	"time"
)

// SendError records a failed send to one subscriber.
type SendError struct {
	SubscriberEmail string    `json:"subscriber_email"`
	ErrorMessage    string    `json:"error_message"`
	Timestamp       time.Time `json:"timestamp"`
	RetryCount      int       `json:"retry_count"`
}

// Report summarizes a bulk send.
type Report struct {
	TotalSubscribers int         `json:"total_subscribers"`
	SuccessfulSends  int         `json:"successful_sends"`
	FailedSends      int         `json:"failed_sends"`
	StartedAt        time.Time   `json:"started_at"`
	CompletedAt      *time.Time  `json:"completed_at"`
	Errors           []SendError `json:"errors"`
}

// NewReport starts a report for total subscribers.
func NewReport(total int) *Report {
	return &Report{
		TotalSubscribers: total,
		StartedAt:        time.Now().UTC(),
		Errors:           []SendError{},
	}
}

// AddSuccess counts a successful send.
func (r *Report) AddSuccess() {
	r.SuccessfulSends++
}

// AddError counts a failed send.
func (r *Report) AddError(email string, err error) {
	r.FailedSends++
	r.Errors = append(r.Errors, SendError{
		SubscriberEmail: email,
		ErrorMessage:    err.Error(),
		Timestamp:       time.Now().UTC(),
	})
}

// Complete sets the completion time.
func (r *Report) Complete() {
	now := time.Now().UTC()
	r.CompletedAt = &now
}

// IsComplete reports whether every subscriber has been attempted.
func (r *Report) IsComplete() bool {
	return r.SuccessfulSends+r.FailedSends >= r.TotalSubscribers
}

// SuccessRate is the share of successful sends. It is 1 if there was nothing to send.
func (r *Report) SuccessRate() float64 {
	if r.TotalSubscribers == 0 {
		return 1
	}

	return float64(r.SuccessfulSends) / float64(r.TotalSubscribers)
}

// Duration is the time the send took so far.
func (r *Report) Duration() time.Duration {
	if r.CompletedAt == nil {
		return time.Since(r.StartedAt)
	}

	return r.CompletedAt.Sub(r.StartedAt)
}
