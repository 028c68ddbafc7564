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

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/lukasdietrich/newsletter/internal/delivery"
	"github.com/lukasdietrich/newsletter/internal/models"
)

var errArgs = errors.New("wrong number of arguments")

const timeLayout = "2006-01-02 15:04"

// confirm asks a yes/no question on the terminal. Anything but "y" or "yes" is a no.
func confirm(prompt string) (bool, error) {
	answer, err := readline.Line(prompt + " [y/N] ")
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return false, nil
		}

		return false, err
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)

	return tw
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}

	return t.Local().Format(timeLayout)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}

	return *s
}

func renderSubscribers(w io.Writer, subscribers []models.SubscriberEntity) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Email", "Status", "Subscribed", "Approved", "Source"})

	for _, subscriber := range subscribers {
		tw.AppendRow(table.Row{
			subscriber.ID,
			subscriber.Email,
			statusColor(subscriber.Status).Sprint(subscriber.Status.Title()),
			formatTime(&subscriber.SubscribedAt),
			formatTime(subscriber.ApprovedAt),
			deref(subscriber.SourceEmailID),
		})
	}

	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d subscribers", len(subscribers))})
	tw.Render()
}

func statusColor(status models.SubscriberStatus) text.Colors {
	switch status {
	case models.StatusApproved:
		return text.Colors{text.FgGreen}
	case models.StatusDeclined:
		return text.Colors{text.FgRed}
	default:
		return text.Colors{text.FgYellow}
	}
}

func renderReport(w io.Writer, report *delivery.Report) {
	tw := newTable(w)
	tw.SetTitle("Send report")
	tw.AppendRows([]table.Row{
		{"Total", report.TotalSubscribers},
		{"Successful", report.SuccessfulSends},
		{"Failed", report.FailedSends},
		{"Success rate", fmt.Sprintf("%.1f%%", report.SuccessRate()*100)},
		{"Duration", report.Duration().Round(time.Second)},
	})
	tw.Render()

	if len(report.Errors) == 0 {
		return
	}

	errs := newTable(w)
	errs.SetTitle("Failed sends")
	errs.AppendHeader(table.Row{"Email", "Error"})

	for _, sendErr := range report.Errors {
		errs.AppendRow(table.Row{sendErr.SubscriberEmail, sendErr.ErrorMessage})
	}

	errs.Render()
}

// progress prints the progress of a send on a single line.
func progress(done, total int) {
	fmt.Fprintf(os.Stderr, "\rSent %d/%d", done, total)

	if done == total {
		fmt.Fprintln(os.Stderr)
	}
}
