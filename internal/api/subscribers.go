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
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/mails"
	"github.com/lukasdietrich/newsletter/internal/metrics"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/store"
)

const origin = "api"

type createSubscriberRequest struct {
	Email  string  `json:"email" validate:"required,max=320"`
	Status *string `json:"status" validate:"omitempty,oneof=pending approved declined"`
	Notes  *string `json:"notes" validate:"omitempty,max=4096"`
}

type updateSubscriberRequest struct {
	Status *string `json:"status" validate:"omitempty,oneof=pending approved declined"`
	Notes  *string `json:"notes" validate:"omitempty,max=4096"`
}

type statsResponse struct {
	TotalSubscribers    int64 `json:"total_subscribers"`
	ApprovedSubscribers int64 `json:"approved_subscribers"`
	PendingSubscribers  int64 `json:"pending_subscribers"`
	DeclinedSubscribers int64 `json:"declined_subscribers"`
}

// listQuery is the query of subscriber listings.
type listQuery struct {
	Status *models.SubscriberStatus
	Limit  int
	Offset int
}

func parseListQuery(values url.Values) (*listQuery, error) {
	query := listQuery{Limit: -1}

	if raw := values.Get("status"); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			return nil, err
		}

		query.Status = &status
	}

	for key, target := range map[string]*int{"limit": &query.Limit, "offset": &query.Offset} {
		raw := values.Get(key)
		if raw == "" {
			continue
		}

		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, errors.New(key + " must be a non-negative integer")
		}

		*target = n
	}

	return &query, nil
}

// paginate skips offset subscribers and returns at most limit of the rest. A negative limit
// returns everything.
func paginate(subscribers []models.SubscriberEntity, offset, limit int) []models.SubscriberEntity {
	if offset >= len(subscribers) {
		return []models.SubscriberEntity{}
	}

	subscribers = subscribers[offset:]

	if limit >= 0 && limit < len(subscribers) {
		subscribers = subscribers[:limit]
	}

	return subscribers
}

func (s *Server) querySubscribers(w http.ResponseWriter, r *http.Request) ([]models.SubscriberEntity, bool) {
	query, err := parseListQuery(r.URL.Query())
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return nil, false
	}

	subscribers, err := s.store.List(r.Context(), query.Status)
	if err != nil {
		respondInternal(w, r, err)
		return nil, false
	}

	return paginate(subscribers, query.Offset, query.Limit), true
}

func (s *Server) listSubscribers(w http.ResponseWriter, r *http.Request) {
	if subscribers, ok := s.querySubscribers(w, r); ok {
		respond(w, r, http.StatusOK, subscribers)
	}
}

func (s *Server) createSubscriber(w http.ResponseWriter, r *http.Request) {
	var request createSubscriberRequest
	if err := s.decode(r, &request); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	email, err := mails.ParseAddress(request.Email)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid email address")
		return
	}

	subscriber := models.SubscriberEntity{
		Email:         email,
		Status:        models.StatusPending,
		SourceEmailID: models.StringPtr(origin),
		Notes:         request.Notes,
	}

	if request.Status != nil {
		subscriber.Status = models.SubscriberStatus(*request.Status)
	}

	ctx := log.WithSubscriber(r.Context(), email)

	if _, err := s.store.Add(ctx, &subscriber); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			respondError(w, r, http.StatusConflict, "subscriber already exists")
			return
		}

		respondInternal(w, r, err)
		return
	}

	metrics.RecordSubscriberAdded(origin)

	created, err := s.store.Get(ctx, email)
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	log.InfoContext(ctx).Str("status", string(created.Status)).Msg("subscriber created")
	respond(w, r, http.StatusCreated, created)
}

func (s *Server) getSubscriber(w http.ResponseWriter, r *http.Request) {
	subscriber, err := s.store.Get(r.Context(), pathEmail(r))
	if err != nil {
		s.respondLookupError(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, subscriber)
}

func (s *Server) updateSubscriber(w http.ResponseWriter, r *http.Request) {
	var request updateSubscriberRequest
	if err := s.decode(r, &request); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var status *models.SubscriberStatus
	if request.Status != nil {
		parsed := models.SubscriberStatus(*request.Status)
		status = &parsed
	}

	email := pathEmail(r)

	subscriber, err := s.store.Update(log.WithSubscriber(r.Context(), email), email, status, request.Notes)
	if err != nil {
		s.respondLookupError(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, subscriber)
}

func (s *Server) deleteSubscriber(w http.ResponseWriter, r *http.Request) {
	email := pathEmail(r)

	removed, err := s.store.Remove(log.WithSubscriber(r.Context(), email), email)
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	if !removed {
		respondError(w, r, http.StatusNotFound, "subscriber not found")
		return
	}

	respond(w, r, http.StatusOK, map[string]string{"deleted": email})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Stats(r.Context())
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, statsResponse{
		TotalSubscribers:    counts.Total,
		ApprovedSubscribers: counts.Approved,
		PendingSubscribers:  counts.Pending,
		DeclinedSubscribers: counts.Declined,
	})
}

func (s *Server) respondLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, "subscriber not found")
		return
	}

	respondInternal(w, r, err)
}

func pathEmail(r *http.Request) string {
	raw := chi.URLParam(r, "email")

	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}

	return mails.NormalizeAddress(raw)
}
