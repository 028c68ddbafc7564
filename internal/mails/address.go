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

package mails

import (
	"errors"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrInvalidAddressFormat is used for addresses, that do not look like "local-part@domain".
	ErrInvalidAddressFormat = errors.New("address: invalid format")
)

var fold = cases.Fold()

// ExtractAddress returns the normalized address of a free-form "From" header. Supported forms are
// `Name <addr>`, `<addr>` and a bare `addr`.
func ExtractAddress(from string) string {
	raw := from

	if open := strings.LastIndex(raw, "<"); open >= 0 {
		if end := strings.Index(raw[open:], ">"); end > 0 {
			raw = raw[open+1 : open+end]
		}
	}

	return NormalizeAddress(raw)
}

// NormalizeAddress trims and case-folds an address. The domain is mapped to its unicode form if
// possible.
func NormalizeAddress(raw string) string {
	addr := fold.String(strings.TrimSpace(raw))

	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return addr
	}

	domain, err := DomainToUnicode(addr[at+1:])
	if err != nil {
		return addr
	}

	return addr[:at+1] + domain
}

// IsValidAddress performs a structural check: an "@" that is neither the first nor the last
// character, at least one "." and more than five characters in total.
func IsValidAddress(addr string) bool {
	return len(addr) > 5 &&
		strings.Contains(addr, "@") &&
		strings.Contains(addr, ".") &&
		!strings.HasPrefix(addr, "@") &&
		!strings.HasSuffix(addr, "@")
}

// ParseAddress extracts, normalizes and validates an address in one step.
func ParseAddress(from string) (string, error) {
	addr := ExtractAddress(from)
	if !IsValidAddress(addr) {
		return addr, ErrInvalidAddressFormat
	}

	return addr, nil
}

// DomainToUnicode normalizes a punycode domain to unicode and applies the
// NFC normal form.
func DomainToUnicode(domain string) (string, error) {
	mapped, err := idna.Lookup.ToUnicode(domain)
	if err != nil {
		return domain, err
	}

	return norm.NFC.String(mapped), nil
}
