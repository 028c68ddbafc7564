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
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/lukasdietrich/newsletter/internal/models"
)

// NewToken creates an unsubscribe token. It only has to be unique, it is neither secret nor
// verifiable. The token is safe to embed in urls.
func NewToken(email string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(email)) + ":" + uuid.NewString()[:8]
}

// UnsubscribeURL is a mailto link asking the mailbox owner to unsubscribe the token.
func UnsubscribeURL(mailbox, token string) string {
	query := url.Values{
		"subject": {"Unsubscribe"},
		"body":    {"Please unsubscribe me from the newsletter. Token: " + token},
	}

	// mailto uris encode spaces as %20, a literal plus is already escaped as %2B.
	return "mailto:" + mailbox + "?" + strings.ReplaceAll(query.Encode(), "+", "%20")
}

// Personalize returns a copy of the newsletter with the markers replaced for one recipient.
func Personalize(newsletter *models.Newsletter, mailbox, token string) *models.Newsletter {
	replacer := strings.NewReplacer(
		models.TokenMarker, token,
		models.URLMarker, UnsubscribeURL(mailbox, token),
	)

	personalized := *newsletter
	personalized.HTMLContent = replacer.Replace(newsletter.HTMLContent)
	personalized.TextContent = replacer.Replace(newsletter.TextContent)

	return &personalized
}
