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
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockElements = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Li:         true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.Table:      true,
	atom.Tr:         true,
	atom.Header:     true,
	atom.Footer:     true,
	atom.Section:    true,
	atom.Article:    true,
	atom.Hr:         true,
}

var skippedElements = map[atom.Atom]bool{
	atom.Head:   true,
	atom.Script: true,
	atom.Style:  true,
	atom.Title:  true,
}

// HTMLToText renders an html document as plain text. Block elements are separated by blank lines,
// list items are prefixed with "* " and links keep their target in parentheses.
func HTMLToText(document string) string {
	var (
		tokenizer = html.NewTokenizer(strings.NewReader(document))
		w         textWriter
		skip      int
		pre       int
		hrefs     []string
	)

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return w.String()

		case html.TextToken:
			if skip > 0 {
				continue
			}

			text := string(tokenizer.Text())
			if pre > 0 {
				w.writeRaw(text)
			} else {
				w.writeWords(text)
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()

			switch {
			case skippedElements[token.DataAtom]:
				if token.Type == html.StartTagToken {
					skip++
				}
			case token.DataAtom == atom.Br:
				w.newline()
			case token.DataAtom == atom.Li:
				w.block()
				w.writeRaw("* ")
			case token.DataAtom == atom.Pre:
				pre++
				w.block()
			case token.DataAtom == atom.A:
				hrefs = append(hrefs, attr(token, "href"))
			case blockElements[token.DataAtom]:
				w.block()
			}

		case html.EndTagToken:
			token := tokenizer.Token()

			switch {
			case skippedElements[token.DataAtom]:
				if skip > 0 {
					skip--
				}
			case token.DataAtom == atom.Pre:
				if pre > 0 {
					pre--
				}
				w.block()
			case token.DataAtom == atom.A:
				if n := len(hrefs); n > 0 {
					href := hrefs[n-1]
					hrefs = hrefs[:n-1]

					if href != "" && !strings.HasPrefix(href, "#") && !w.endsWith(href) {
						w.space = true
						w.writeWords("(" + href + ")")
					}
				}
			case blockElements[token.DataAtom]:
				w.block()
			}
		}
	}
}

func attr(token html.Token, key string) string {
	for _, a := range token.Attr {
		if a.Key == key {
			return a.Val
		}
	}

	return ""
}

type textWriter struct {
	b        strings.Builder
	newlines int
	space    bool
}

func (w *textWriter) writeWords(text string) {
	words := strings.Fields(text)
	if len(words) == 0 {
		if text != "" {
			w.space = true
		}
		return
	}

	if w.b.Len() > 0 && w.newlines == 0 && (w.space || isSpace(text[0])) {
		w.b.WriteByte(' ')
	}

	w.b.WriteString(strings.Join(words, " "))
	w.newlines = 0
	w.space = isSpace(text[len(text)-1])
}

func (w *textWriter) writeRaw(text string) {
	w.b.WriteString(text)
	w.newlines = 0
	w.space = false

	if strings.HasSuffix(text, "\n") {
		w.newlines = 1
	}
}

func (w *textWriter) newline() {
	w.b.WriteByte('\n')
	w.newlines++
	w.space = false
}

func (w *textWriter) block() {
	if w.b.Len() == 0 {
		return
	}

	for w.newlines < 2 {
		w.newline()
	}
}

func (w *textWriter) endsWith(s string) bool {
	return strings.HasSuffix(w.b.String(), s)
}

func (w *textWriter) String() string {
	return strings.TrimSpace(w.b.String())
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
