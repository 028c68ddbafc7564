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

package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lukasdietrich/newsletter/internal/models"
)

func fixtures() []models.SubscriberEntity {
	approvedAt := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	return []models.SubscriberEntity{
		{
			ID:            2,
			Email:         "b@example.com",
			Status:        models.StatusApproved,
			SubscribedAt:  time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC),
			ApprovedAt:    &approvedAt,
			SourceEmailID: models.StringPtr("42"),
		},
		{
			ID:           1,
			Email:        "a@example.com",
			Status:       models.StatusPending,
			SubscribedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
			Notes:        models.StringPtr("Migrated from Substack | Tags: a, b"),
		},
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, JSON, format)

	_, err = ParseFormat("yaml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWriteCSV(t *testing.T) {
	var buffer bytes.Buffer
	require.NoError(t, Write(&buffer, CSV, fixtures()))

	records, err := csv.NewReader(&buffer).ReadAll()
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"id", "email", "status", "subscribed_at", "approved_at", "source_email_id", "notes"},
		{"2", "b@example.com", "approved", "2024-01-02T08:00:00Z", "2024-02-01T09:00:00Z", "42", ""},
		{"1", "a@example.com", "pending", "2024-01-01T08:00:00Z", "", "", "Migrated from Substack | Tags: a, b"},
	}, records)
}

func TestWriteJSON(t *testing.T) {
	var buffer bytes.Buffer
	require.NoError(t, Write(&buffer, JSON, fixtures()))

	var decoded []models.SubscriberEntity
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "b@example.com", decoded[0].Email)
	assert.Nil(t, decoded[1].ApprovedAt)

	buffer.Reset()
	require.NoError(t, Write(&buffer, JSON, nil))
	assert.JSONEq(t, "[]", buffer.String())
}

func TestWriteXLSX(t *testing.T) {
	var buffer bytes.Buffer
	require.NoError(t, Write(&buffer, XLSX, fixtures()))

	f, err := excelize.OpenReader(&buffer)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "email", rows[0][1])
	assert.Equal(t, "b@example.com", rows[1][1])
	assert.Equal(t, "2", rows[1][0])
	assert.Equal(t, "pending", rows[2][2])
}

func TestWriteFile(t *testing.T) {
	fs := afero.NewMemMapFs()

	require.NoError(t, WriteFile(fs, "subscribers.csv", CSV, fixtures()))

	content, err := afero.ReadFile(fs, "subscribers.csv")
	require.NoError(t, err)
	assert.Contains(t, string(content), "a@example.com")

	err = WriteFile(fs, "subscribers.yaml", Format("yaml"), fixtures())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	exists, err := afero.Exists(fs, "subscribers.yaml")
	require.NoError(t, err)
	assert.False(t, exists)
}
