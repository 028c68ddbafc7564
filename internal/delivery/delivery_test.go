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
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/database"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/plugin"
	"github.com/lukasdietrich/newsletter/internal/store"
)

type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type fakeTransport struct {
	messages []*Message
	failures map[string]error
	closed   int
}

func (t *fakeTransport) Send(_ context.Context, message *Message) error {
	if err := t.failures[message.To]; err != nil {
		return err
	}

	t.messages = append(t.messages, message)
	return nil
}

func (t *fakeTransport) Close() error {
	t.closed++
	return nil
}

type recordingHooks struct {
	hooks []plugin.Hook
}

func (h *recordingHooks) Run(_ context.Context, hook plugin.Hook, _ map[string]any) []plugin.Result {
	h.hooks = append(h.hooks, hook)
	return nil
}

func TestRateLimiterBlocksUntilWindowElapsed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(3, clock)
	ctx := context.Background()

	limiter.Wait(ctx)
	clock.advance(10 * time.Second)
	limiter.Wait(ctx)
	clock.advance(10 * time.Second)
	limiter.Wait(ctx)
	assert.Empty(t, clock.slept)

	clock.advance(10 * time.Second)
	limiter.Wait(ctx)
	assert.Equal(t, []time.Duration{30 * time.Second}, clock.slept)

	// the second send left the window 10 seconds after the first one
	limiter.Wait(ctx)
	assert.Equal(t, []time.Duration{30 * time.Second, 10 * time.Second}, clock.slept)
}

func TestRateLimiterAdmitsAfterQuietPeriod(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(2, clock)
	ctx := context.Background()

	limiter.Wait(ctx)
	limiter.Wait(ctx)
	clock.advance(2 * time.Minute)
	limiter.Wait(ctx)
	limiter.Wait(ctx)

	assert.Empty(t, clock.slept)
}

func TestRateLimiterDisabled(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	limiter := NewRateLimiter(0, clock)

	for i := 0; i < 100; i++ {
		limiter.Wait(context.Background())
	}

	assert.Empty(t, clock.slept)
}

func TestReportArithmetic(t *testing.T) {
	report := NewReport(5)
	assert.False(t, report.IsComplete())

	report.AddSuccess()
	report.AddSuccess()
	report.AddError("test@example.com", errors.New("mailbox unavailable"))
	assert.False(t, report.IsComplete())

	report.AddSuccess()
	report.AddSuccess()
	assert.True(t, report.IsComplete())
	assert.Equal(t, 0.8, report.SuccessRate())
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "test@example.com", report.Errors[0].SubscriberEmail)
	assert.Equal(t, "mailbox unavailable", report.Errors[0].ErrorMessage)
	assert.Zero(t, report.Errors[0].RetryCount)

	assert.Equal(t, 1.0, NewReport(0).SuccessRate())
}

func TestNewToken(t *testing.T) {
	token := NewToken("john@example.com")

	encoded, random, ok := strings.Cut(token, ":")
	require.True(t, ok)
	assert.Len(t, random, 8)

	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "john@example.com", string(decoded))

	assert.NotEqual(t, token, NewToken("john@example.com"))

	for _, email := range []string{"a+b@example.com", "~~~?@example.com", "jo>>n@example.com"} {
		assert.False(t, strings.ContainsAny(NewToken(email), "+/="), email)
	}
}

func TestUnsubscribeURL(t *testing.T) {
	token := "a+b/c=:1234&x"
	raw := UnsubscribeURL("news@example.com", token)

	assert.NotContains(t, raw, " ")
	assert.NotContains(t, raw, "+")

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "mailto", parsed.Scheme)
	assert.Equal(t, "news@example.com", parsed.Opaque)

	query := parsed.Query()
	assert.Equal(t, "Unsubscribe", query.Get("subject"))
	assert.Equal(t, "Please unsubscribe me from the newsletter. Token: "+token, query.Get("body"))
}

func TestPersonalize(t *testing.T) {
	newsletter := &models.Newsletter{
		Subject:     "Issue 1",
		HTMLContent: `<a href="{{unsubscribe_url}}">Unsubscribe</a> {{unsubscribe_token}}`,
		TextContent: "Token: {{unsubscribe_token}}",
	}

	personalized := Personalize(newsletter, "news@example.com", "abc:1234")

	assert.Equal(t,
		`<a href="mailto:news@example.com?body=Please%20unsubscribe%20me%20from%20the%20newsletter.%20Token%3A%20abc%3A1234&subject=Unsubscribe">Unsubscribe</a> abc:1234`,
		personalized.HTMLContent)
	assert.Equal(t, "Token: abc:1234", personalized.TextContent)
	assert.Equal(t, "Token: {{unsubscribe_token}}", newsletter.TextContent)
}

func TestMessageBytes(t *testing.T) {
	message := &Message{
		From:    &mail.Address{Name: "My Blog", Address: "news@example.com"},
		To:      "reader@example.com",
		Subject: "Grüße",
		HTML:    "<p>Hello</p>",
		Text:    "Hello",
	}

	data, err := message.Bytes()
	require.NoError(t, err)

	r, err := mail.CreateReader(strings.NewReader(string(data)))
	require.NoError(t, err)

	subject, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Grüße", subject)

	from, err := r.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "news@example.com", from[0].Address)
	assert.Equal(t, "My Blog", from[0].Name)

	bodies := make(map[string]string)

	for {
		part, err := r.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}

		require.NoError(t, err)

		header, ok := part.Header.(*mail.InlineHeader)
		require.True(t, ok)

		contentType, _, err := header.ContentType()
		require.NoError(t, err)

		body, err := io.ReadAll(part.Body)
		require.NoError(t, err)

		bodies[contentType] = string(body)
	}

	assert.Equal(t, map[string]string{"text/plain": "Hello", "text/html": "<p>Hello</p>"}, bodies)
}

// startSink accepts a single smtp session and reports every received message.
func startSink(t *testing.T) (*config.MailServer, <-chan string) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() { listener.Close() })

	received := make(chan string, 10)

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}

		defer conn.Close()

		tp := textproto.NewConn(conn)
		tp.PrintfLine("220 localhost ESMTP sink")

		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}

			switch verb, _, _ := strings.Cut(strings.ToUpper(line), " "); verb {
			case "EHLO", "HELO":
				tp.PrintfLine("250 localhost")
			case "DATA":
				tp.PrintfLine("354 go ahead")

				data, err := tp.ReadDotBytes()
				if err != nil {
					return
				}

				received <- string(data)
				tp.PrintfLine("250 queued")
			case "QUIT":
				tp.PrintfLine("221 bye")
				return
			default:
				tp.PrintfLine("250 ok")
			}
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	useTLS := false

	return &config.MailServer{Server: "127.0.0.1", Port: port, Username: "news@example.com", UseTLS: &useTLS}, received
}

func TestSMTPTransportReusesSession(t *testing.T) {
	server, received := startSink(t)
	transport := NewSMTPTransport(server, "secret")
	ctx := context.Background()

	from := &mail.Address{Name: "Newsletter", Address: "news@example.com"}

	for _, to := range []string{"a@example.com", "b@example.com"} {
		err := transport.Send(ctx, &Message{From: from, To: to, Subject: "Hi", Text: "Hello", HTML: "<p>Hello</p>"})
		require.NoError(t, err)
	}

	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())

	for _, to := range []string{"a@example.com", "b@example.com"} {
		select {
		case data := <-received:
			assert.Contains(t, data, "To: <"+to+">")
		case <-time.After(5 * time.Second):
			t.Fatal("no message received")
		}
	}
}

func TestSMTPTransportConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	transport := NewSMTPTransport(&config.MailServer{Server: "127.0.0.1", Port: port}, "secret")
	err = transport.Send(context.Background(), &Message{
		From: &mail.Address{Address: "news@example.com"},
		To:   "a@example.com",
	})

	assert.Error(t, err)
	assert.NoError(t, transport.Close())
}

func TestNewTransportUnsupported(t *testing.T) {
	_, err := NewTransport(context.Background(), &config.Settings{Enabled: true, Transport: "pigeon"})
	assert.ErrorIs(t, err, ErrUnsupportedTransport)

	_, err = NewTransport(context.Background(), &config.Settings{Enabled: true, Transport: "smtp"})
	assert.ErrorIs(t, err, config.ErrConfigMissing)
}

func TestNewTransportRequiresEnabledNewsletter(t *testing.T) {
	viper.Set("delivery.sendgrid.api_key", "SG.key")
	defer viper.Set("delivery.sendgrid.api_key", "")

	for _, transport := range []string{"smtp", "ses", "sendgrid"} {
		settings := &config.Settings{
			Transport:    transport,
			SMTP:         &config.MailServer{Server: "smtp.example.com", Port: 465, Username: "news@example.com"},
			SMTPPassword: "secret",
		}

		_, err := NewTransport(context.Background(), settings)
		assert.ErrorIs(t, err, config.ErrConfigMissing, transport)
		assert.Contains(t, err.Error(), "newsletter.enabled", transport)

		settings.Enabled = true
		assert.NoError(t, CheckTransport(settings), transport)
	}
}

func TestCheckTransportSendGridKey(t *testing.T) {
	viper.Set("delivery.sendgrid.api_key", "")

	err := CheckTransport(&config.Settings{Enabled: true, Transport: "sendgrid"})
	assert.ErrorIs(t, err, config.ErrConfigMissing)
}

func TestSenderTestSuite(t *testing.T) {
	suite.Run(t, new(SenderTestSuite))
}

type SenderTestSuite struct {
	suite.Suite

	ctx       context.Context
	conn      database.Conn
	store     *store.Store
	transport *fakeTransport
	hooks     *recordingHooks
	clock     *fakeClock
	sender    *Sender
}

func (s *SenderTestSuite) SetupTest() {
	viper.Set("storage.database.filename", ":memory:")
	viper.Set("storage.database.journalmode", "memory")

	conn, err := database.OpenConnection()
	s.Require().NoError(err)

	settings := &config.Settings{
		SenderName: "My Blog",
		SMTP:       &config.MailServer{Server: "smtp.example.com", Port: 587, Username: "news@example.com"},
	}

	s.ctx = context.Background()
	s.conn = conn
	s.store = store.New(conn, database.NewSubscriberDao())
	s.transport = &fakeTransport{failures: make(map[string]error)}
	s.hooks = new(recordingHooks)
	s.clock = &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	s.sender = NewSender(settings, s.transport, NewRateLimiter(10, s.clock), s.hooks)
}

func (s *SenderTestSuite) TearDownTest() {
	s.Require().NoError(s.conn.Close())
}

func (s *SenderTestSuite) newsletter() *models.Newsletter {
	return &models.Newsletter{
		Subject:     "My Blog: Hello",
		HTMLContent: `<p>Hello</p><a href="{{unsubscribe_url}}">Unsubscribe</a>`,
		TextContent: "Hello\nUnsubscribe: {{unsubscribe_url}}",
		CreatedAt:   time.Now(),
	}
}

func (s *SenderTestSuite) TestApproveThenSend() {
	id, err := s.store.Add(s.ctx, &models.SubscriberEntity{Email: "a@example.com"})
	s.Require().NoError(err)

	s.Require().NoError(s.store.UpdateStatus(s.ctx, id, models.StatusApproved))

	subscriber, err := s.store.Get(s.ctx, "a@example.com")
	s.Require().NoError(err)
	s.Assert().Equal(models.StatusApproved, subscriber.Status)
	s.Assert().NotNil(subscriber.ApprovedAt)

	approved := models.StatusApproved
	subscribers, err := s.store.List(s.ctx, &approved)
	s.Require().NoError(err)

	report := s.sender.SendToApproved(s.ctx, s.newsletter(), subscribers, nil)

	s.Assert().Equal(1, report.TotalSubscribers)
	s.Assert().Equal(1, report.SuccessfulSends)
	s.Assert().Equal(0, report.FailedSends)
	s.Assert().NotNil(report.CompletedAt)

	s.Require().Len(s.transport.messages, 1)
	message := s.transport.messages[0]
	s.Assert().Equal("a@example.com", message.To)
	s.Assert().Equal("My Blog", message.From.Name)
	s.Assert().Equal("news@example.com", message.From.Address)
	s.Assert().NotContains(message.HTML, "{{unsubscribe_url}}")
	s.Assert().Contains(message.Text, "mailto:news@example.com?body=Please%20unsubscribe")
	s.Assert().Contains(message.Text, "&subject=Unsubscribe")
	s.Assert().Equal(1, s.transport.closed)
	s.Assert().Equal([]plugin.Hook{plugin.PreSend, plugin.PostSend}, s.hooks.hooks)
}

func (s *SenderTestSuite) TestOnlyApprovedInInputOrder() {
	subscribers := []models.SubscriberEntity{
		{Email: "c@example.com", Status: models.StatusApproved},
		{Email: "p@example.com", Status: models.StatusPending},
		{Email: "a@example.com", Status: models.StatusApproved},
		{Email: "d@example.com", Status: models.StatusDeclined},
	}

	var progress [][2]int
	report := s.sender.SendToApproved(s.ctx, s.newsletter(), subscribers, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})

	s.Assert().Equal(2, report.TotalSubscribers)
	s.Require().Len(s.transport.messages, 2)
	s.Assert().Equal("c@example.com", s.transport.messages[0].To)
	s.Assert().Equal("a@example.com", s.transport.messages[1].To)
	s.Assert().Equal([][2]int{{1, 2}, {2, 2}}, progress)
}

func (s *SenderTestSuite) TestFailureDoesNotStopBatch() {
	s.transport.failures["b@example.com"] = errors.New("550 mailbox unavailable")

	subscribers := []models.SubscriberEntity{
		{Email: "a@example.com", Status: models.StatusApproved},
		{Email: "b@example.com", Status: models.StatusApproved},
		{Email: "c@example.com", Status: models.StatusApproved},
	}

	report := s.sender.SendToApproved(s.ctx, s.newsletter(), subscribers, nil)

	s.Assert().Equal(3, report.TotalSubscribers)
	s.Assert().Equal(2, report.SuccessfulSends)
	s.Assert().Equal(1, report.FailedSends)
	s.Require().Len(report.Errors, 1)
	s.Assert().Equal("b@example.com", report.Errors[0].SubscriberEmail)
	s.Assert().Contains(report.Errors[0].ErrorMessage, "550 mailbox unavailable")
	s.Assert().Len(s.transport.messages, 2)
}

func (s *SenderTestSuite) TestNoApprovedSubscribers() {
	subscribers := []models.SubscriberEntity{{Email: "p@example.com", Status: models.StatusPending}}

	report := s.sender.SendToApproved(s.ctx, s.newsletter(), subscribers, nil)

	s.Assert().Zero(report.TotalSubscribers)
	s.Assert().NotNil(report.CompletedAt)
	s.Assert().Equal(1.0, report.SuccessRate())
	s.Assert().Empty(s.transport.messages)
	s.Assert().Empty(s.hooks.hooks)
}

func (s *SenderTestSuite) TestSendsAreRateLimited() {
	var subscribers []models.SubscriberEntity
	for _, email := range []string{"1@example.com", "2@example.com", "3@example.com", "4@example.com", "5@example.com",
		"6@example.com", "7@example.com", "8@example.com", "9@example.com", "10@example.com", "11@example.com"} {
		subscribers = append(subscribers, models.SubscriberEntity{Email: email, Status: models.StatusApproved})
	}

	report := s.sender.SendToApproved(s.ctx, s.newsletter(), subscribers, nil)

	s.Assert().Equal(11, report.SuccessfulSends)
	s.Assert().Equal([]time.Duration{time.Minute}, s.clock.slept)
}

func (s *SenderTestSuite) TestSendTest() {
	s.Require().NoError(s.sender.SendTest(s.ctx, s.newsletter(), "  Tester <TEST@example.com> "))

	s.Require().Len(s.transport.messages, 1)
	s.Assert().Equal("test@example.com", s.transport.messages[0].To)
	s.Assert().Empty(s.clock.slept)

	s.Assert().Error(s.sender.SendTest(s.ctx, s.newsletter(), "invalid"))
}

func (s *SenderTestSuite) dispatcher(openErr error) *Dispatcher {
	settings := &config.Settings{
		Enabled:      true,
		RateLimit:    10,
		SMTP:         &config.MailServer{Username: "news@example.com"},
		SMTPPassword: "secret",
	}

	dispatcher := NewDispatcher(settings, s.store, s.hooks)
	dispatcher.clock = s.clock
	dispatcher.newTransport = func(context.Context, *config.Settings) (Transport, error) {
		if openErr != nil {
			return nil, openErr
		}

		return s.transport, nil
	}

	return dispatcher
}

func (s *SenderTestSuite) TestDispatcherSendsToApprovedOfStore() {
	for _, email := range []string{"a@example.com", "b@example.com"} {
		_, err := s.store.Add(s.ctx, &models.SubscriberEntity{Email: email})
		s.Require().NoError(err)
	}

	subscriber, err := s.store.Get(s.ctx, "b@example.com")
	s.Require().NoError(err)
	s.Require().NoError(s.store.UpdateStatus(s.ctx, subscriber.ID, models.StatusApproved))

	report, err := s.dispatcher(nil).Send(s.ctx, s.newsletter(), nil)
	s.Require().NoError(err)

	s.Assert().Equal(1, report.TotalSubscribers)
	s.Assert().Equal(1, report.SuccessfulSends)
	s.Require().Len(s.transport.messages, 1)
	s.Assert().Equal("b@example.com", s.transport.messages[0].To)
}

func (s *SenderTestSuite) TestDispatcherDoesNotOpenTransportWithoutRecipients() {
	report, err := s.dispatcher(errors.New("should not be opened")).Send(s.ctx, s.newsletter(), nil)
	s.Require().NoError(err)

	s.Assert().Zero(report.TotalSubscribers)
	s.Assert().True(report.IsComplete())
}

func (s *SenderTestSuite) TestDispatcherDisabledNewsletter() {
	_, err := s.store.Add(s.ctx, &models.SubscriberEntity{Email: "a@example.com", Status: models.StatusApproved})
	s.Require().NoError(err)

	dispatcher := s.dispatcher(nil)
	dispatcher.settings.Enabled = false

	s.Assert().ErrorIs(dispatcher.Check(), config.ErrConfigMissing)

	_, err = dispatcher.Send(s.ctx, s.newsletter(), nil)
	s.Assert().ErrorIs(err, config.ErrConfigMissing)

	err = dispatcher.SendTest(s.ctx, s.newsletter(), "a@example.com")
	s.Assert().ErrorIs(err, config.ErrConfigMissing)

	s.Assert().Empty(s.transport.messages)
}

func (s *SenderTestSuite) TestDispatcherTransportFailure() {
	_, err := s.store.Add(s.ctx, &models.SubscriberEntity{Email: "a@example.com", Status: models.StatusApproved})
	s.Require().NoError(err)

	_, err = s.dispatcher(config.ErrConfigMissing).Send(s.ctx, s.newsletter(), nil)
	s.Assert().ErrorIs(err, config.ErrConfigMissing)

	err = s.dispatcher(config.ErrConfigMissing).SendTest(s.ctx, s.newsletter(), "a@example.com")
	s.Assert().ErrorIs(err, config.ErrConfigMissing)
}
