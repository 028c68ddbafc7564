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

// Package export writes subscribers as csv, json or xlsx.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"

	"github.com/lukasdietrich/newsletter/internal/models"
)

// ErrUnsupportedFormat is returned for unknown export formats.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format is an export file format.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
	XLSX Format = "xlsx"
)

// ParseFormat parses a format name case-insensitively.
func ParseFormat(raw string) (Format, error) {
	switch format := Format(strings.ToLower(strings.TrimSpace(raw))); format {
	case CSV, JSON, XLSX:
		return format, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// ContentType is the media type of the format.
func (f Format) ContentType() string {
	switch f {
	case JSON:
		return "application/json"
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

var columns = []string{"id", "email", "status", "subscribed_at", "approved_at", "source_email_id", "notes"}

// Write encodes the subscribers in the given order.
func Write(w io.Writer, format Format, subscribers []models.SubscriberEntity) error {
	switch format {
	case CSV:
		return writeCSV(w, subscribers)
	case JSON:
		return writeJSON(w, subscribers)
	case XLSX:
		return writeXLSX(w, subscribers)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// WriteFile writes the export to a file of fs. A partially written file is removed.
func WriteFile(fs afero.Fs, filename string, format Format, subscribers []models.SubscriberEntity) error {
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}

	if err := Write(file, format, subscribers); err != nil {
		file.Close()
		fs.Remove(filename)

		return err
	}

	return file.Close()
}

func record(subscriber models.SubscriberEntity) []string {
	return []string{
		strconv.FormatInt(subscriber.ID, 10),
		subscriber.Email,
		string(subscriber.Status),
		formatTime(&subscriber.SubscribedAt),
		formatTime(subscriber.ApprovedAt),
		models.StringValue(subscriber.SourceEmailID),
		models.StringValue(subscriber.Notes),
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339)
}

func writeCSV(w io.Writer, subscribers []models.SubscriberEntity) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(columns); err != nil {
		return err
	}

	for _, subscriber := range subscribers {
		if err := writer.Write(record(subscriber)); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeJSON(w io.Writer, subscribers []models.SubscriberEntity) error {
	if subscribers == nil {
		subscribers = []models.SubscriberEntity{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(subscribers)
}

const sheetName = "Subscribers"

func writeXLSX(w io.Writer, subscribers []models.SubscriberEntity) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for i, column := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}

		if err := f.SetCellValue(sheetName, cell, column); err != nil {
			return err
		}

		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return err
		}
	}

	for row, subscriber := range subscribers {
		values := record(subscriber)

		for i, value := range values {
			cell, err := excelize.CoordinatesToCellName(i+1, row+2)
			if err != nil {
				return err
			}

			var cellValue any = value
			if i == 0 {
				cellValue = subscriber.ID
			}

			if err := f.SetCellValue(sheetName, cell, cellValue); err != nil {
				return err
			}
		}
	}

	_, err = f.WriteTo(w)
	return err
}
