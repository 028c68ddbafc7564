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

package review

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const timeLayout = "2006-01-02 15:04"

var helpLines = []string{
	"Navigation",
	"  j / Down, k / Up      move the cursor",
	"  J / PgDn, K / PgUp    next / previous page",
	"  g / Home, G / End     first / last subscriber",
	"",
	"Selection",
	"  Space                 toggle the subscriber under the cursor",
	"  a                     select the current page",
	"  Ctrl+a                select every visible subscriber",
	"  n                     clear the selection",
	"",
	"Actions",
	"  A / Enter             approve the selection",
	"  D                     decline the selection",
	"  X / Del               delete the selection",
	"",
	"Filters",
	"  1 2 3 4               all, pending, approved, declined",
	"  /                     search by email",
	"  r / F5                reload from the database",
	"",
	"  q / Esc / Ctrl+c      quit",
}

// Render draws the state as text. Lines are separated by "\n".
func Render(state State) string {
	var b strings.Builder

	b.WriteString(text.Bold.Sprint("Subscriber review"))
	b.WriteString("\n")
	b.WriteString(renderFilters(state))
	b.WriteString("\n\n")

	if state.Mode == Help {
		b.WriteString(strings.Join(helpLines, "\n"))
		b.WriteString("\n\nPress any key to continue.\n")
		return b.String()
	}

	if len(state.Visible) == 0 {
		b.WriteString("  No subscribers match the current filter.\n")
	} else {
		b.WriteString(renderTable(state))
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("\nPage %d/%d | %d visible | %d selected\n",
		state.Page()+1, state.Pages(), len(state.Visible), len(state.Selected)))

	switch state.Mode {
	case Confirm:
		n := len(state.Targets())
		b.WriteString(text.FgYellow.Sprintf("%s %d %s? [y/n]", strings.ToUpper(state.Pending.String()[:1])+state.Pending.String()[1:], n, plural(n)))
	case Search:
		b.WriteString(fmt.Sprintf("Search: %s_", state.Query))
	default:
		if state.Message != "" {
			b.WriteString(state.Message)
		} else {
			b.WriteString(text.Faint.Sprint("Press h for help."))
		}
	}

	b.WriteString("\n")
	return b.String()
}

func renderFilters(state State) string {
	parts := make([]string, len(filterNames))

	for i := range filterNames {
		label := fmt.Sprintf("%d %s", i+1, Filter(i))

		if Filter(i) == state.Filter {
			parts[i] = text.ReverseVideo.Sprint(" " + label + " ")
		} else {
			parts[i] = " " + label + " "
		}
	}

	line := strings.Join(parts, " ")
	if state.Query != "" {
		line += fmt.Sprintf("  search: %q", state.Query)
	}

	return line
}

func renderTable(state State) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"", "", "ID", "Email", "Status", "Subscribed", "Approved"})

	start := state.Page() * state.PageSize
	end := start + state.PageSize
	if end > len(state.Visible) {
		end = len(state.Visible)
	}

	for i := start; i < end; i++ {
		subscriber := state.Subscribers[state.Visible[i]]

		cursor, mark := " ", "[ ]"
		if i == state.Cursor {
			cursor = ">"
		}
		if state.Selected[subscriber.ID] {
			mark = "[x]"
		}

		approved := "-"
		if subscriber.ApprovedAt != nil {
			approved = subscriber.ApprovedAt.Local().Format(timeLayout)
		}

		email := subscriber.Email
		if i == state.Cursor {
			email = text.Bold.Sprint(email)
		}

		t.AppendRow(table.Row{
			cursor,
			mark,
			subscriber.ID,
			email,
			subscriber.Status.Title(),
			subscriber.SubscribedAt.Local().Format(timeLayout),
			approved,
		})
	}

	return t.Render()
}
