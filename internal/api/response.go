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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lukasdietrich/newsletter/internal/log"
)

// maxBodySize limits json request bodies. Raw imports are spooled and not limited.
const maxBodySize = 1 << 20

// envelope wraps every response payload.
type envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data"`
	Error     *string   `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	write(w, r, status, envelope{
		Success:   false,
		Error:     &message,
		Timestamp: time.Now().UTC(),
	})
}

// respondInternal logs the cause and hides it from the client.
func respondInternal(w http.ResponseWriter, r *http.Request, err error) {
	log.ErrorContext(r.Context()).
		Err(err).
		Str("path", r.URL.Path).
		Msg("request failed")

	respondError(w, r, http.StatusInternalServerError, "internal server error")
}

func write(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WarnContext(r.Context()).Err(err).Msg("could not write response")
	}
}

// decode reads a json body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	return s.validateStruct(v)
}

func (s *Server) validateStruct(v any) error {
	err := s.validate.Struct(v)

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	messages := make([]string, len(validationErrs))
	for i, fieldErr := range validationErrs {
		if fieldErr.Param() != "" {
			messages[i] = fmt.Sprintf("%s must satisfy %s=%s", fieldErr.Field(), fieldErr.Tag(), fieldErr.Param())
		} else {
			messages[i] = fmt.Sprintf("%s must satisfy %s", fieldErr.Field(), fieldErr.Tag())
		}
	}

	return errors.New(strings.Join(messages, ", "))
}
