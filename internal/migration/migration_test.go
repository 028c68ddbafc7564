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

package migration

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lukasdietrich/newsletter/internal/database"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/store"
)

func TestParseSource(t *testing.T) {
	source, err := ParseSource("MailChimp")
	require.NoError(t, err)
	assert.Equal(t, Mailchimp, source)

	source, err = ParseSource("csv")
	require.NoError(t, err)
	assert.Equal(t, Generic, source)

	_, err = ParseSource("revue")
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		source   Source
		raw      string
		expected models.SubscriberStatus
	}{
		{Mailchimp, "subscribed", models.StatusApproved},
		{Mailchimp, "Unsubscribed", models.StatusDeclined},
		{Mailchimp, "cleaned", models.StatusDeclined},
		{Mailchimp, "pending", models.StatusPending},
		{Mailchimp, "active", models.StatusPending},
		{Mailchimp, "", models.StatusPending},
		{ConvertKit, "active", models.StatusApproved},
		{ConvertKit, "cancelled", models.StatusDeclined},
		{Substack, "subscribed", models.StatusApproved},
		{Substack, "cancelled", models.StatusPending},
		{Beehiiv, "unsubscribed", models.StatusDeclined},
		{JSON, "approved", models.StatusApproved},
		{JSON, "declined", models.StatusDeclined},
		{Generic, "whatever", models.StatusPending},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, MapStatus(test.source, test.raw), "%s %q", test.source, test.raw)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		raw      string
		expected time.Time
	}{
		{"2023-12-01 10:30:00", time.Date(2023, 12, 1, 10, 30, 0, 0, time.UTC)},
		{"2023-12-01T10:30:00", time.Date(2023, 12, 1, 10, 30, 0, 0, time.UTC)},
		{"2023-12-01T10:30:00Z", time.Date(2023, 12, 1, 10, 30, 0, 0, time.UTC)},
		{"2023-12-01T10:30:00.250Z", time.Date(2023, 12, 1, 10, 30, 0, 250000000, time.UTC)},
		{"2023-12-01", time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)},
		{"12/01/2023", time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)},
		{"25/12/2023", time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC)},
		{"12-01-2023", time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)},
		{"2023-12-01T10:30:00+02:00", time.Date(2023, 12, 1, 8, 30, 0, 0, time.UTC)},
	}

	for _, test := range tests {
		actual := ParseDate(test.raw)
		if assert.NotNil(t, actual, test.raw) {
			assert.True(t, test.expected.Equal(*actual), "%s: expected %s, got %s", test.raw, test.expected, actual)
		}
	}

	assert.Nil(t, ParseDate("yesterday"))
	assert.Nil(t, ParseDate(""))
}

func TestParseCSVQuotedFields(t *testing.T) {
	input := "email,name,status\n" +
		`"test@example.com","John, Doe","subscribed"` + "\n" +
		`"quote@example.com","The ""Boss""",active` + "\n" +
		",,\n"

	parsed, err := Parse(Generic, strings.NewReader(input), Overrides{})
	require.NoError(t, err)
	require.Len(t, parsed, 2)

	assert.Equal(t, "test@example.com", parsed[0].Email)
	assert.Equal(t, "John, Doe", parsed[0].Name)
	assert.Equal(t, "subscribed", parsed[0].Status)
	assert.Equal(t, `The "Boss"`, parsed[1].Name)
}

func TestParseMailchimp(t *testing.T) {
	input := "Email Address,FNAME,Member Status,Timestamp Signup,Tags,Country\n" +
		"jane@example.com,Jane,subscribed,2023-01-15 08:00:00,\"vip, early\",DE\n" +
		"gone@example.com,Gone,unsubscribed,not a date,,\n"

	parsed, err := Parse(Mailchimp, strings.NewReader(input), Overrides{})
	require.NoError(t, err)
	require.Len(t, parsed, 2)

	jane := parsed[0]
	assert.Equal(t, "jane@example.com", jane.Email)
	assert.Equal(t, "Jane", jane.Name)
	assert.Equal(t, []string{"vip", "early"}, jane.Tags)
	assert.Equal(t, map[string]string{"Country": "DE"}, jane.CustomFields)
	require.NotNil(t, jane.SubscribedAt)
	assert.Equal(t, 2023, jane.SubscribedAt.Year())

	assert.Nil(t, parsed[1].SubscribedAt)

	subscriber, err := Convert(Mailchimp, jane)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, subscriber.Status)
	assert.Equal(t, "migration-Mailchimp", models.StringValue(subscriber.SourceEmailID))
	assert.Equal(t, `Migrated from Mailchimp | Tags: vip, early | Custom fields: {"Country":"DE"}`,
		models.StringValue(subscriber.Notes))
	require.NotNil(t, subscriber.ApprovedAt)
	assert.True(t, subscriber.ApprovedAt.Equal(*jane.SubscribedAt))
}

func TestParseWithOverrides(t *testing.T) {
	input := "Mail;State\njohn@example.com;active\n"

	parsed, err := Parse(ConvertKit, strings.NewReader(input), Overrides{
		EmailColumn:  "Mail",
		StatusColumn: "State",
		Delimiter:    ';',
	})
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "john@example.com", parsed[0].Email)
	assert.Equal(t, "active", parsed[0].Status)
	assert.Empty(t, parsed[0].CustomFields)
}

func TestParseJSON(t *testing.T) {
	input := `[
		{"email": "a@example.com", "status": "approved", "tags": ["x", "y"], "score": 7, "vip": true},
		{"email": "b@example.com", "created_at": "2022-05-01T12:00:00Z", "nested": {"ignored": 1}},
		"not an object"
	]`

	parsed, err := Parse(JSON, strings.NewReader(input), Overrides{})
	require.NoError(t, err)
	require.Len(t, parsed, 2)

	assert.Equal(t, []string{"x", "y"}, parsed[0].Tags)
	assert.Equal(t, map[string]string{"score": "7", "vip": "true"}, parsed[0].CustomFields)
	require.NotNil(t, parsed[1].SubscribedAt)
	assert.Empty(t, parsed[1].CustomFields)

	single, err := Parse(JSON, strings.NewReader(`{"email": "c@example.com"}`), Overrides{})
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "c@example.com", single[0].Email)

	_, err = Parse(JSON, strings.NewReader(`42`), Overrides{})
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	parsed := []ImportedSubscriber{{Email: "a"}, {Email: "b"}, {Email: "c"}}

	assert.Len(t, Preview(parsed, 2), 2)
	assert.Len(t, Preview(parsed, 10), 3)
	assert.Len(t, Preview(parsed, 0), 3)
}

func TestImporterTestSuite(t *testing.T) {
	suite.Run(t, new(ImporterTestSuite))
}

type ImporterTestSuite struct {
	suite.Suite

	ctx      context.Context
	conn     database.Conn
	store    *store.Store
	importer *Importer
}

func (s *ImporterTestSuite) SetupTest() {
	viper.Set("storage.database.filename", ":memory:")
	viper.Set("storage.database.journalmode", "memory")

	conn, err := database.OpenConnection()
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.conn = conn
	s.store = store.New(conn, database.NewSubscriberDao())
	s.importer = NewImporter(s.store)
}

func (s *ImporterTestSuite) TearDownTest() {
	s.Require().NoError(s.conn.Close())
}

func (s *ImporterTestSuite) fakeExport(n int) []byte {
	faker := gofakeit.New(42)

	var buffer bytes.Buffer
	w := csv.NewWriter(&buffer)

	s.Require().NoError(w.Write([]string{"email", "name", "status"}))

	for i := 0; i < n; i++ {
		email := fmt.Sprintf("user%d.%s@example.com", i, strings.ToLower(faker.Username()))
		s.Require().NoError(w.Write([]string{email, faker.Name(), faker.RandomString([]string{"active", "declined", "new"})}))
	}

	w.Flush()
	s.Require().NoError(w.Error())

	return buffer.Bytes()
}

func (s *ImporterTestSuite) importBytes(source Source, data []byte) *Result {
	parsed, err := Parse(source, bytes.NewReader(data), Overrides{})
	s.Require().NoError(err)

	result, err := s.importer.Import(s.ctx, source, parsed)
	s.Require().NoError(err)

	return result
}

func (s *ImporterTestSuite) TestImportIsIdempotent() {
	for _, n := range []int{1, 7, 25} {
		s.TearDownTest()
		s.SetupTest()

		data := s.fakeExport(n)

		first := s.importBytes(Generic, data)
		s.Assert().Equal(n, first.TotalProcessed)
		s.Assert().Equal(n, first.SuccessfullyImported)
		s.Assert().Zero(first.SkippedDuplicates)
		s.Assert().Empty(first.Errors)

		second := s.importBytes(Generic, data)
		s.Assert().Equal(n, second.TotalProcessed)
		s.Assert().Zero(second.SuccessfullyImported)
		s.Assert().Equal(n, second.SkippedDuplicates)
	}
}

func (s *ImporterTestSuite) TestImportReportsInvalidRows() {
	data := []byte("email,name\n" +
		"valid@example.com,Valid\n" +
		",No Email\n" +
		"invalid,Broken\n" +
		"VALID@example.com,Again\n")

	result := s.importBytes(Generic, data)

	s.Assert().Equal(4, result.TotalProcessed)
	s.Assert().Equal(1, result.SuccessfullyImported)
	s.Assert().Equal(1, result.SkippedDuplicates)
	s.Require().Len(result.Errors, 2)
	s.Assert().Contains(result.Errors[0], "row 2")
	s.Assert().Contains(result.Errors[1], "row 3")
}

func (s *ImporterTestSuite) TestImportKeepsStatusInvariant() {
	data := []byte("Email Address,Member Status,Timestamp Signup\n" +
		"a@example.com,subscribed,2023-01-01\n" +
		"b@example.com,unsubscribed,\n" +
		"c@example.com,pending,2023-01-03\n")

	result := s.importBytes(Mailchimp, data)
	s.Require().Equal(3, result.SuccessfullyImported)

	subscribers, err := s.store.List(s.ctx, nil)
	s.Require().NoError(err)

	for _, subscriber := range subscribers {
		s.Assert().Equal(subscriber.Status == models.StatusPending, subscriber.ApprovedAt == nil, subscriber.Email)
	}

	counts, err := s.store.Stats(s.ctx)
	s.Require().NoError(err)
	s.Assert().Equal(&models.StatusCounts{Total: 3, Pending: 1, Approved: 1, Declined: 1}, counts)
}

func TestOverridesFromMap(t *testing.T) {
	overrides, err := OverridesFromMap(map[string]string{
		"Email":     "E-Mail",
		"status":    "State",
		"delimiter": "tab",
	})
	require.NoError(t, err)
	assert.Equal(t, Overrides{EmailColumn: "E-Mail", StatusColumn: "State", Delimiter: '\t'}, overrides)

	overrides, err = OverridesFromMap(map[string]string{"delimiter": ";"})
	require.NoError(t, err)
	assert.Equal(t, ';', overrides.Delimiter)

	_, err = OverridesFromMap(map[string]string{"delimiter": ";;"})
	assert.Error(t, err)

	_, err = OverridesFromMap(map[string]string{"phone": "Phone"})
	assert.Error(t, err)
}
