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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lukasdietrich/newsletter/internal/compose"
	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/database"
	"github.com/lukasdietrich/newsletter/internal/delivery"
	"github.com/lukasdietrich/newsletter/internal/migration"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/spool"
	"github.com/lukasdietrich/newsletter/internal/store"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	sent    []string
	tests   []string
	err      error
	checkErr error
	release  chan struct{}
}

func (d *fakeDispatcher) Check() error {
	return d.checkErr
}

func (d *fakeDispatcher) Send(_ context.Context, newsletter *models.Newsletter, _ delivery.ProgressFunc) (*delivery.Report, error) {
	if d.release != nil {
		<-d.release
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.sent = append(d.sent, newsletter.Subject)

	report := delivery.NewReport(1)
	report.AddSuccess()
	report.Complete()

	return report, d.err
}

func (d *fakeDispatcher) SendTest(_ context.Context, newsletter *models.Newsletter, address string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return d.err
	}

	d.tests = append(d.tests, address)
	return nil
}

func (d *fakeDispatcher) sentSubjects() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.sent...)
}

type staticPosts struct {
	post *compose.Post
}

func (p staticPosts) LatestPost(context.Context) (*compose.Post, error) {
	if p.post == nil {
		return nil, compose.ErrNoPosts
	}

	return p.post, nil
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

type ServerTestSuite struct {
	suite.Suite

	conn       database.Conn
	store      *store.Store
	dispatcher *fakeDispatcher
	posts      staticPosts
	options    Options
	server     *Server
}

func (s *ServerTestSuite) SetupTest() {
	viper.Set("storage.database.filename", ":memory:")
	viper.Set("storage.database.journalmode", "memory")

	conn, err := database.OpenConnection()
	s.Require().NoError(err)

	s.conn = conn
	s.store = store.New(conn, database.NewSubscriberDao())
	s.dispatcher = new(fakeDispatcher)
	s.posts = staticPosts{}
	s.options = Options{}
	s.server = s.newServer()
}

func (s *ServerTestSuite) TearDownTest() {
	s.server.Wait()
	s.Require().NoError(s.conn.Close())
}

func (s *ServerTestSuite) newServer() *Server {
	settings := &config.Settings{BlogTitle: "My Blog", BlogURL: "https://blog.example.com"}

	return NewServer(
		s.options,
		s.store,
		migration.NewImporter(s.store),
		spool.NewWithFs(afero.NewMemMapFs(), 1<<20),
		compose.NewComposer(settings, compose.NewTemplates(nil), nil),
		s.posts,
		s.dispatcher,
	)
}

func (s *ServerTestSuite) do(method, target, contentType, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}

	w := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(w, r)

	return w
}

func (s *ServerTestSuite) doJSON(method, target, body string) (int, response) {
	w := s.do(method, target, "application/json", body)

	var decoded response
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())

	return w.Code, decoded
}

func (s *ServerTestSuite) add(email string, status models.SubscriberStatus) {
	_, err := s.store.Add(context.Background(), &models.SubscriberEntity{Email: email, Status: status})
	s.Require().NoError(err)
}

func (s *ServerTestSuite) subscribers(data json.RawMessage) []models.SubscriberEntity {
	var subscribers []models.SubscriberEntity
	s.Require().NoError(json.Unmarshal(data, &subscribers))
	return subscribers
}

func (s *ServerTestSuite) TestHealth() {
	code, body := s.doJSON(http.MethodGet, "/health", "")

	s.Equal(http.StatusOK, code)
	s.True(body.Success)
	s.Nil(body.Error)
	s.Contains(string(body.Data), `"status":"healthy"`)
	s.Contains(string(body.Data), `"service":"newsletter-api"`)
}

func (s *ServerTestSuite) TestCreateSubscriber() {
	code, body := s.doJSON(http.MethodPost, "/subscribers", `{"email": "  Alice@Example.com "}`)
	s.Require().Equal(http.StatusCreated, code, string(body.Data))

	var created models.SubscriberEntity
	s.Require().NoError(json.Unmarshal(body.Data, &created))

	s.Equal("alice@example.com", created.Email)
	s.Equal(models.StatusPending, created.Status)
	s.Nil(created.ApprovedAt)
	s.Require().NotNil(created.SourceEmailID)
	s.Equal("api", *created.SourceEmailID)

	code, body = s.doJSON(http.MethodPost, "/subscribers", `{"email": "alice@example.com"}`)
	s.Equal(http.StatusConflict, code)
	s.False(body.Success)
	s.Require().NotNil(body.Error)
}

func (s *ServerTestSuite) TestCreateApprovedSubscriber() {
	code, body := s.doJSON(http.MethodPost, "/subscribers", `{"email": "bob@example.com", "status": "approved"}`)
	s.Require().Equal(http.StatusCreated, code)

	var created models.SubscriberEntity
	s.Require().NoError(json.Unmarshal(body.Data, &created))

	s.Equal(models.StatusApproved, created.Status)
	s.NotNil(created.ApprovedAt)
}

func (s *ServerTestSuite) TestCreateSubscriberRejectsInvalidInput() {
	for _, input := range []string{
		`{"email": "not an address"}`,
		`{"email": ""}`,
		`{"email": "a@example.com", "status": "unknown"}`,
		`{"email": "a@example.com", "unknown": true}`,
		`{`,
	} {
		code, body := s.doJSON(http.MethodPost, "/subscribers", input)

		s.Equal(http.StatusBadRequest, code, input)
		s.False(body.Success, input)
	}

	count, err := s.store.Count(context.Background(), nil)
	s.Require().NoError(err)
	s.Zero(count)
}

func (s *ServerTestSuite) TestGetUpdateDelete() {
	s.add("carol@example.com", models.StatusPending)

	code, body := s.doJSON(http.MethodGet, "/subscribers/Carol@Example.com", "")
	s.Require().Equal(http.StatusOK, code)
	s.Contains(string(body.Data), `"email":"carol@example.com"`)

	code, body = s.doJSON(http.MethodPut, "/subscribers/carol@example.com", `{"status": "approved", "notes": "friend"}`)
	s.Require().Equal(http.StatusOK, code)

	var updated models.SubscriberEntity
	s.Require().NoError(json.Unmarshal(body.Data, &updated))
	s.Equal(models.StatusApproved, updated.Status)
	s.NotNil(updated.ApprovedAt)
	s.Require().NotNil(updated.Notes)
	s.Equal("friend", *updated.Notes)

	code, _ = s.doJSON(http.MethodDelete, "/subscribers/carol%40example.com", "")
	s.Equal(http.StatusOK, code)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		code, body = s.doJSON(method, "/subscribers/carol@example.com", "")
		s.Equal(http.StatusNotFound, code, method)
		s.False(body.Success)
	}

	code, _ = s.doJSON(http.MethodPut, "/subscribers/carol@example.com", `{"notes": "gone"}`)
	s.Equal(http.StatusNotFound, code)
}

func (s *ServerTestSuite) TestListSubscribers() {
	s.add("a@example.com", models.StatusPending)
	s.add("b@example.com", models.StatusApproved)
	s.add("c@example.com", models.StatusApproved)

	code, body := s.doJSON(http.MethodGet, "/subscribers", "")
	s.Require().Equal(http.StatusOK, code)
	s.Len(s.subscribers(body.Data), 3)

	code, body = s.doJSON(http.MethodGet, "/subscribers?status=approved", "")
	s.Require().Equal(http.StatusOK, code)

	approved := s.subscribers(body.Data)
	s.Len(approved, 2)
	for _, subscriber := range approved {
		s.Equal(models.StatusApproved, subscriber.Status)
	}

	code, body = s.doJSON(http.MethodGet, "/subscribers?limit=2&offset=2", "")
	s.Require().Equal(http.StatusOK, code)
	s.Len(s.subscribers(body.Data), 1)

	code, body = s.doJSON(http.MethodGet, "/subscribers?offset=10", "")
	s.Require().Equal(http.StatusOK, code)
	s.Equal("[]", string(body.Data))

	for _, query := range []string{"status=nope", "limit=-1", "offset=x"} {
		code, _ = s.doJSON(http.MethodGet, "/subscribers?"+query, "")
		s.Equal(http.StatusBadRequest, code, query)
	}
}

func (s *ServerTestSuite) TestStats() {
	s.add("a@example.com", models.StatusPending)
	s.add("b@example.com", models.StatusApproved)
	s.add("c@example.com", models.StatusDeclined)
	s.add("d@example.com", models.StatusApproved)

	code, body := s.doJSON(http.MethodGet, "/stats", "")
	s.Require().Equal(http.StatusOK, code)

	var stats statsResponse
	s.Require().NoError(json.Unmarshal(body.Data, &stats))
	s.Equal(statsResponse{
		TotalSubscribers:    4,
		ApprovedSubscribers: 2,
		PendingSubscribers:  1,
		DeclinedSubscribers: 1,
	}, stats)
}

func (s *ServerTestSuite) TestExport() {
	s.add("a@example.com", models.StatusPending)
	s.add("b@example.com", models.StatusApproved)

	w := s.do(http.MethodGet, "/export?format=csv&status=approved", "", "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Header().Get("Content-Disposition"), "attachment")
	s.Contains(w.Header().Get("Content-Disposition"), ".csv")
	s.Contains(w.Body.String(), "b@example.com")
	s.NotContains(w.Body.String(), "a@example.com")

	w = s.do(http.MethodGet, "/export?format=json", "", "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("application/json", w.Header().Get("Content-Type"))
	s.Contains(w.Body.String(), "a@example.com")

	code, body := s.doJSON(http.MethodGet, "/export", "")
	s.Require().Equal(http.StatusOK, code)
	s.Len(s.subscribers(body.Data), 2)

	code, _ = s.doJSON(http.MethodGet, "/export?format=pdf", "")
	s.Equal(http.StatusBadRequest, code)
}

func (s *ServerTestSuite) TestImportPreview() {
	request := `{
		"source": "generic",
		"data": "email,name\na@example.com,A\nb@example.com,B\nc@example.com,C\n",
		"preview_only": true,
		"preview_limit": 2
	}`

	code, body := s.doJSON(http.MethodPost, "/import", request)
	s.Require().Equal(http.StatusOK, code, string(body.Data))

	var preview previewResponse
	s.Require().NoError(json.Unmarshal(body.Data, &preview))
	s.Equal(3, preview.Total)
	s.Len(preview.Subscribers, 2)

	count, err := s.store.Count(context.Background(), nil)
	s.Require().NoError(err)
	s.Zero(count)
}

func (s *ServerTestSuite) TestImportJSON() {
	s.add("a@example.com", models.StatusPending)

	request := `{
		"source": "json",
		"data": [
			{"email": "a@example.com", "status": "approved"},
			{"email": "b@example.com", "status": "approved"},
			{"email": "not an address"}
		]
	}`

	code, body := s.doJSON(http.MethodPost, "/import", request)
	s.Require().Equal(http.StatusOK, code, string(body.Data))

	var result migration.Result
	s.Require().NoError(json.Unmarshal(body.Data, &result))
	s.Equal(3, result.TotalProcessed)
	s.Equal(1, result.SuccessfullyImported)
	s.Equal(1, result.SkippedDuplicates)
	s.Len(result.Errors, 1)

	imported, err := s.store.Get(context.Background(), "b@example.com")
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, imported.Status)
}

func (s *ServerTestSuite) TestImportRawUpload() {
	data := "Mail;Full Name\nx@example.com;X\ny@example.com;Y\n"

	w := s.do(http.MethodPost, "/import?source=csv&email_column=Mail&name_column=Full%20Name&delimiter=%3B", "text/csv", data)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	count, err := s.store.Count(context.Background(), nil)
	s.Require().NoError(err)
	s.EqualValues(2, count)

	w = s.do(http.MethodPost, "/import", "text/csv", data)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *ServerTestSuite) TestImportRejectsBadRequests() {
	for input, expected := range map[string]int{
		`{"source": "myspace", "data": "email\n"}`:                                    http.StatusBadRequest,
		`{"source": "generic"}`:                                                       http.StatusBadRequest,
		`{"source": "generic", "data": "x", "column_mappings": {"unknown": "x"}}`:     http.StatusBadRequest,
		`{"source": "json", "data": "42"}`:                                            http.StatusUnprocessableEntity,
		`{"source": "generic", "data": "email\na@example.com\n", "preview_limit": -1}`: http.StatusBadRequest,
	} {
		code, body := s.doJSON(http.MethodPost, "/import", input)
		s.Equal(expected, code, input)
		s.False(body.Success, input)
	}
}

func (s *ServerTestSuite) TestSendStartsInBackground() {
	code, body := s.doJSON(http.MethodPost, "/newsletter/send", `{"subject": "Hello", "content": "# Hi"}`)
	s.Require().Equal(http.StatusAccepted, code, string(body.Data))
	s.Contains(string(body.Data), "newsletter sending started")

	s.server.Wait()
	s.Equal([]string{"Hello"}, s.dispatcher.sentSubjects())
}

func (s *ServerTestSuite) TestOnlyOneSendAtATime() {
	s.dispatcher.release = make(chan struct{})

	code, _ := s.doJSON(http.MethodPost, "/newsletter/send", `{"subject": "First", "content": "x"}`)
	s.Require().Equal(http.StatusAccepted, code)

	code, body := s.doJSON(http.MethodPost, "/newsletter/send", `{"subject": "Second", "content": "x"}`)
	s.Equal(http.StatusConflict, code)
	s.Require().NotNil(body.Error)
	s.Equal("a newsletter is already being sent", *body.Error)

	close(s.dispatcher.release)
	s.server.Wait()

	s.Equal([]string{"First"}, s.dispatcher.sentSubjects())
}

func (s *ServerTestSuite) TestSendRejectedWithoutConfiguration() {
	s.dispatcher.checkErr = fmt.Errorf("%w: set newsletter.enabled = true", config.ErrConfigMissing)

	code, body := s.doJSON(http.MethodPost, "/newsletter/send", `{"subject": "Hello", "content": "x"}`)
	s.Equal(http.StatusServiceUnavailable, code)
	s.False(body.Success)
	s.Require().NotNil(body.Error)
	s.Contains(*body.Error, "newsletter.enabled")

	s.posts = staticPosts{post: &compose.Post{Title: "Release notes", Markdown: "x", Date: time.Now()}}
	s.server = s.newServer()

	code, _ = s.doJSON(http.MethodPost, "/newsletter/send-latest", "")
	s.Equal(http.StatusServiceUnavailable, code)

	s.server.Wait()
	s.Empty(s.dispatcher.sentSubjects())
}

func (s *ServerTestSuite) TestSendWithDisabledNewsletter() {
	server := NewServer(
		s.options,
		s.store,
		migration.NewImporter(s.store),
		spool.NewWithFs(afero.NewMemMapFs(), 1<<20),
		compose.NewComposer(&config.Settings{BlogTitle: "My Blog"}, compose.NewTemplates(nil), nil),
		s.posts,
		delivery.NewDispatcher(&config.Settings{Enabled: false}, s.store, nil),
	)

	s.add("a@example.com", models.StatusApproved)

	r := httptest.NewRequest(http.MethodPost, "/newsletter/send", strings.NewReader(`{"subject": "Hi", "content": "x"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, r)
	server.Wait()

	s.Equal(http.StatusServiceUnavailable, w.Code, w.Body.String())
}

func (s *ServerTestSuite) TestSendTestMode() {
	code, body := s.doJSON(http.MethodPost, "/newsletter/send",
		`{"subject": "Hello", "content": "x", "test_mode": true, "test_email": "me@example.com"}`)
	s.Require().Equal(http.StatusOK, code, string(body.Data))

	s.Equal([]string{"me@example.com"}, s.dispatcher.tests)
	s.Empty(s.dispatcher.sentSubjects())

	code, _ = s.doJSON(http.MethodPost, "/newsletter/send", `{"subject": "Hello", "content": "x", "test_mode": true}`)
	s.Equal(http.StatusBadRequest, code)

	s.dispatcher.err = config.ErrConfigMissing
	code, _ = s.doJSON(http.MethodPost, "/newsletter/send",
		`{"subject": "Hello", "content": "x", "test_mode": true, "test_email": "me@example.com"}`)
	s.Equal(http.StatusServiceUnavailable, code)

	s.dispatcher.err = errors.New("connection refused")
	code, _ = s.doJSON(http.MethodPost, "/newsletter/send",
		`{"subject": "Hello", "content": "x", "test_mode": true, "test_email": "me@example.com"}`)
	s.Equal(http.StatusBadGateway, code)
}

func (s *ServerTestSuite) TestSendValidatesRequest() {
	for _, input := range []string{
		`{"content": "x"}`,
		`{"subject": "Hello"}`,
		`{"subject": "Hello", "content": "x", "test_mode": true, "test_email": "nope"}`,
	} {
		code, _ := s.doJSON(http.MethodPost, "/newsletter/send", input)
		s.Equal(http.StatusBadRequest, code, input)
	}

	s.Empty(s.dispatcher.sentSubjects())
}

func (s *ServerTestSuite) TestSendLatest() {
	code, _ := s.doJSON(http.MethodPost, "/newsletter/send-latest", "")
	s.Equal(http.StatusNotFound, code)

	s.posts = staticPosts{post: &compose.Post{
		Title:    "Release notes",
		URL:      "https://blog.example.com/release-notes",
		Date:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Markdown: "Things happened.",
	}}
	s.server = s.newServer()

	code, body := s.doJSON(http.MethodPost, "/newsletter/send-latest", "")
	s.Require().Equal(http.StatusAccepted, code)
	s.Contains(string(body.Data), "Release notes")

	s.server.Wait()
	s.Require().Len(s.dispatcher.sentSubjects(), 1)
	s.Contains(s.dispatcher.sentSubjects()[0], "Release notes")
}

func (s *ServerTestSuite) TestPreview() {
	code, body := s.doJSON(http.MethodPost, "/newsletter/preview", `{"subject": "Hello", "content": "**bold**"}`)
	s.Require().Equal(http.StatusOK, code)

	var newsletter models.Newsletter
	s.Require().NoError(json.Unmarshal(body.Data, &newsletter))
	s.Equal("Hello", newsletter.Subject)
	s.Contains(newsletter.HTMLContent, "<strong>bold</strong>")
	s.Empty(s.dispatcher.sentSubjects())
}

func (s *ServerTestSuite) TestAPIKey() {
	s.options.APIKey = "secret"
	s.server = s.newServer()

	code, _ := s.doJSON(http.MethodGet, "/health", "")
	s.Equal(http.StatusOK, code)

	code, _ = s.doJSON(http.MethodGet, "/stats", "")
	s.Equal(http.StatusUnauthorized, code)

	for header, value := range map[string]string{"X-API-Key": "secret", "Authorization": "Bearer secret"} {
		r := httptest.NewRequest(http.MethodGet, "/stats", nil)
		r.Header.Set(header, value)

		w := httptest.NewRecorder()
		s.server.Handler().ServeHTTP(w, r)
		s.Equal(http.StatusOK, w.Code, header)
	}

	r := httptest.NewRequest(http.MethodGet, "/stats", nil)
	r.Header.Set("X-API-Key", "wrong")

	w := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(w, r)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *ServerTestSuite) TestRateLimit() {
	s.options.RateLimit = 2
	s.server = s.newServer()

	handler := s.server.Handler()

	var codes []int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
		codes = append(codes, w.Code)

		if w.Code == http.StatusTooManyRequests {
			s.Equal("60", w.Header().Get("Retry-After"))
		}
	}

	s.Equal([]int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	s.Equal(http.StatusOK, w.Code)
}

func (s *ServerTestSuite) TestUnknownRoute() {
	code, body := s.doJSON(http.MethodGet, "/nope", "")
	s.Equal(http.StatusNotFound, code)
	s.False(body.Success)

	code, _ = s.doJSON(http.MethodPatch, "/stats", "")
	s.Equal(http.StatusMethodNotAllowed, code)
}

func TestClientLimiterRefills(t *testing.T) {
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	limiter := newClientLimiter(60)
	limiter.now = func() time.Time { return clock }

	for i := 0; i < 60; i++ {
		require.True(t, limiter.allow("10.0.0.1"), i)
	}

	assert.False(t, limiter.allow("10.0.0.1"))
	assert.True(t, limiter.allow("10.0.0.2"))

	clock = clock.Add(time.Second)
	assert.True(t, limiter.allow("10.0.0.1"))
	assert.False(t, limiter.allow("10.0.0.1"))

	clock = clock.Add(visitorIdleTimeout + time.Second)
	limiter.allow("10.0.0.3")
	assert.Len(t, limiter.visitors, 1)
}

func TestParseListQuery(t *testing.T) {
	query, err := parseListQuery(map[string][]string{"status": {"Declined"}, "limit": {"5"}})
	require.NoError(t, err)
	require.NotNil(t, query.Status)
	assert.Equal(t, models.StatusDeclined, *query.Status)
	assert.Equal(t, 5, query.Limit)
	assert.Equal(t, 0, query.Offset)

	query, err = parseListQuery(nil)
	require.NoError(t, err)
	assert.Nil(t, query.Status)
	assert.Equal(t, -1, query.Limit)
}

func TestPaginate(t *testing.T) {
	subscribers := make([]models.SubscriberEntity, 5)
	for i := range subscribers {
		subscribers[i].ID = int64(i + 1)
	}

	assert.Len(t, paginate(subscribers, 0, -1), 5)
	assert.Len(t, paginate(subscribers, 3, -1), 2)
	assert.Len(t, paginate(subscribers, 1, 2), 2)
	assert.Equal(t, int64(2), paginate(subscribers, 1, 2)[0].ID)
	assert.Empty(t, paginate(subscribers, 5, 10))
	assert.Empty(t, paginate(subscribers, 0, 0))
}

func TestImportData(t *testing.T) {
	assert.Equal(t, []byte("email\n"), importData(json.RawMessage(`"email\n"`)))
	assert.Equal(t, []byte(`[{"email":"a@example.com"}]`), importData(json.RawMessage(`[{"email":"a@example.com"}]`)))
}

func TestScheduler(t *testing.T) {
	_, err := NewScheduler("not a schedule", "fetch", func(context.Context) error { return nil })
	assert.Error(t, err)

	scheduler, err := NewScheduler("@every 1h", "fetch", func(context.Context) error { return nil })
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(time.Hour), scheduler.Next(now))

	scheduler, err = NewScheduler("CRON_TZ=UTC 0 6 * * *", "fetch", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC).Equal(scheduler.Next(now)))
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	var (
		runs    int
		release = make(chan struct{})
		started = make(chan struct{})
	)

	scheduler, err := NewScheduler("@every 1h", "fetch", func(context.Context) error {
		runs++
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		scheduler.run()
		close(done)
	}()

	<-started
	scheduler.run()
	close(release)
	<-done

	assert.Equal(t, 1, runs)
}

func TestHeaderlessBodyIsSpooled(t *testing.T) {
	viper.Set("storage.database.filename", ":memory:")
	viper.Set("storage.database.journalmode", "memory")

	conn, err := database.OpenConnection()
	require.NoError(t, err)
	defer conn.Close()

	subscribers := store.New(conn, database.NewSubscriberDao())

	server := NewServer(
		Options{},
		subscribers,
		migration.NewImporter(subscribers),
		spool.NewWithFs(afero.NewMemMapFs(), 8),
		compose.NewComposer(&config.Settings{}, compose.NewTemplates(nil), nil),
		staticPosts{},
		new(fakeDispatcher),
	)

	body := bytes.NewBufferString("email\nlong-address@example.com\n")
	r := httptest.NewRequest(http.MethodPost, "/import?source=generic", body)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	exists, err := subscribers.Exists(context.Background(), "long-address@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}
