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
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/lukasdietrich/newsletter/internal/export"
	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/migration"
)

const defaultPreviewLimit = 10

type importRequest struct {
	Source         string            `json:"source" validate:"required"`
	Data           json.RawMessage   `json:"data" validate:"required"`
	PreviewOnly    bool              `json:"preview_only"`
	PreviewLimit   int               `json:"preview_limit" validate:"min=0"`
	ColumnMappings map[string]string `json:"column_mappings"`
}

type previewResponse struct {
	Total       int                            `json:"total"`
	Subscribers []migration.ImportedSubscriber `json:"subscribers"`
}

// queryMappings maps query parameters of raw uploads to column mappings.
var queryMappings = map[string]string{
	"email_column":  "email",
	"name_column":   "name",
	"status_column": "status",
	"date_column":   "date",
	"tags_column":   "tags",
	"delimiter":     "delimiter",
}

// importSubscribers accepts a json importRequest or a raw upload of the export. Raw uploads carry
// the source and the column mappings as query parameters.
func (s *Server) importSubscribers(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		request importRequest
		data    io.Reader
	)

	if mediaType == "application/json" {
		if err := s.decode(r, &request); err != nil {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}

		data = bytes.NewReader(importData(request.Data))
	} else {
		var err error
		if request, err = importRequestFromQuery(r); err != nil {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}

		entry, err := s.spool.Write(r.Context(), r.Body)
		if err != nil {
			respondInternal(w, r, err)
			return
		}

		defer func() {
			if err := entry.Release(r.Context()); err != nil {
				log.WarnContext(r.Context()).Err(err).Msg("could not release upload")
			}
		}()

		if data, err = entry.Reader(); err != nil {
			respondInternal(w, r, err)
			return
		}
	}

	source, err := migration.ParseSource(request.Source)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	overrides, err := migration.OverridesFromMap(request.ColumnMappings)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	parsed, err := migration.Parse(source, data, overrides)
	if err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if request.PreviewOnly {
		limit := request.PreviewLimit
		if limit == 0 {
			limit = defaultPreviewLimit
		}

		respond(w, r, http.StatusOK, previewResponse{
			Total:       len(parsed),
			Subscribers: migration.Preview(parsed, limit),
		})

		return
	}

	result, err := s.importer.Import(r.Context(), source, parsed)
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, result)
}

// importData unwraps a json string holding the export. Any other json value is the export itself.
func importData(raw json.RawMessage) []byte {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []byte(text)
	}

	return raw
}

func importRequestFromQuery(r *http.Request) (importRequest, error) {
	query := r.URL.Query()

	request := importRequest{
		Source:         query.Get("source"),
		ColumnMappings: make(map[string]string),
	}

	if request.Source == "" {
		return request, fmt.Errorf("the query parameter source is required")
	}

	if raw := query.Get("preview"); raw != "" {
		preview, err := strconv.ParseBool(raw)
		if err != nil {
			return request, fmt.Errorf("preview must be a boolean")
		}

		request.PreviewOnly = preview
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return request, fmt.Errorf("limit must be a non-negative integer")
		}

		request.PreviewLimit = limit
	}

	for param, key := range queryMappings {
		if value := query.Get(param); value != "" {
			request.ColumnMappings[key] = value
		}
	}

	return request, nil
}

// exportSubscribers returns the subscribers as json envelope, or as file download if a format is
// requested.
func (s *Server) exportSubscribers(w http.ResponseWriter, r *http.Request) {
	subscribers, ok := s.querySubscribers(w, r)
	if !ok {
		return
	}

	raw := r.URL.Query().Get("format")
	if raw == "" {
		respond(w, r, http.StatusOK, subscribers)
		return
	}

	format, err := export.ParseFormat(raw)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var buffer bytes.Buffer
	if err := export.Write(&buffer, format, subscribers); err != nil {
		respondInternal(w, r, err)
		return
	}

	filename := fmt.Sprintf("subscribers-%s.%s", time.Now().UTC().Format("20060102-150405"), format)

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(buffer.Len()))
	w.WriteHeader(http.StatusOK)

	if _, err := buffer.WriteTo(w); err != nil {
		log.WarnContext(r.Context()).Err(err).Msg("could not write export")
	}
}
