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

package ingest

import (
	"strings"

	"github.com/lukasdietrich/newsletter/internal/mails"
)

var (
	subscribeKeywords = []string{
		"subscribe",
		"subscription",
		"newsletter",
		"sign up",
		"signup",
		"join",
		"mailing list",
		"updates",
		"notifications",
	}

	unsubscribeKeywords = []string{
		"unsubscribe",
		"remove",
		"stop",
		"opt out",
		"opt-out",
	}
)

// IsSubscriptionIntent reports whether the subject or body of an email asks to subscribe. An email
// that also matches an unsubscribe keyword is never a subscription.
func IsSubscriptionIntent(envelope *mails.Envelope) bool {
	text := strings.ToLower(envelope.Subject + "\n" + envelope.Body)
	return containsAny(text, subscribeKeywords) && !containsAny(text, unsubscribeKeywords)
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}

	return false
}
