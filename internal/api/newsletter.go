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
	"context"
	"errors"
	"net/http"

	"github.com/lukasdietrich/newsletter/internal/compose"
	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/models"
)

type sendRequest struct {
	Subject   string `json:"subject" validate:"required,max=998"`
	Content   string `json:"content" validate:"required"`
	TestMode  bool   `json:"test_mode"`
	TestEmail string `json:"test_email" validate:"omitempty,email"`
}

type previewRequest struct {
	Subject string `json:"subject" validate:"required,max=998"`
	Content string `json:"content" validate:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
	Subject string `json:"subject,omitempty"`
}

func (s *Server) sendNewsletter(w http.ResponseWriter, r *http.Request) {
	var request sendRequest
	if err := s.decode(r, &request); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if request.TestMode && request.TestEmail == "" {
		respondError(w, r, http.StatusBadRequest, "test_email is required in test mode")
		return
	}

	newsletter, err := s.composer.ComposeCustom(r.Context(), request.Subject, request.Content)
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	if request.TestMode {
		if err := s.dispatcher.SendTest(r.Context(), newsletter, request.TestEmail); err != nil {
			s.respondSendError(w, r, err)
			return
		}

		respond(w, r, http.StatusOK, messageResponse{
			Message: "test email sent to " + request.TestEmail,
			Subject: newsletter.Subject,
		})

		return
	}

	s.startSend(w, r, newsletter)
}

func (s *Server) sendLatest(w http.ResponseWriter, r *http.Request) {
	newsletter, err := s.composer.ComposeLatest(r.Context(), s.posts)
	if err != nil {
		if errors.Is(err, compose.ErrNoPosts) {
			respondError(w, r, http.StatusNotFound, err.Error())
			return
		}

		respondInternal(w, r, err)
		return
	}

	s.startSend(w, r, newsletter)
}

func (s *Server) previewNewsletter(w http.ResponseWriter, r *http.Request) {
	var request previewRequest
	if err := s.decode(r, &request); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	newsletter, err := s.composer.ComposeCustom(r.Context(), request.Subject, request.Content)
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, newsletter)
}

// startSend runs the send in the background and responds with 202. Only one send runs at a time.
// A missing configuration is reported before the send is accepted.
func (s *Server) startSend(w http.ResponseWriter, r *http.Request, newsletter *models.Newsletter) {
	if err := s.dispatcher.Check(); err != nil {
		s.respondSendError(w, r, err)
		return
	}

	if !s.sendMu.TryLock() {
		respondError(w, r, http.StatusConflict, "a newsletter is already being sent")
		return
	}

	s.background.Add(1)

	go func() {
		defer s.background.Done()
		defer s.sendMu.Unlock()

		s.send(log.WithCommand(s.baseCtx, "send"), newsletter)
	}()

	respond(w, r, http.StatusAccepted, messageResponse{
		Message: "newsletter sending started",
		Subject: newsletter.Subject,
	})
}

func (s *Server) send(ctx context.Context, newsletter *models.Newsletter) {
	report, err := s.dispatcher.Send(ctx, newsletter, nil)
	if err != nil {
		log.ErrorContext(ctx).
			Err(err).
			Str("subject", newsletter.Subject).
			Msg("could not send newsletter")

		return
	}

	log.InfoContext(ctx).
		Str("subject", newsletter.Subject).
		Int("total", report.TotalSubscribers).
		Int("successful", report.SuccessfulSends).
		Int("failed", report.FailedSends).
		Float64("successRate", report.SuccessRate()).
		Msg("background send finished")
}

func (s *Server) respondSendError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, config.ErrConfigMissing) {
		respondError(w, r, http.StatusServiceUnavailable, err.Error())
		return
	}

	respondError(w, r, http.StatusBadGateway, err.Error())
}
