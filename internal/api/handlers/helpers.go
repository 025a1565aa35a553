// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/domain"
	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/permissions"
	"github.com/autobrr/digiprod/internal/services/license"
)

// ErrorResponse represents an API error response. Fields is set for
// validation failures.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields []models.FieldError `json:"fields,omitempty"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error: message,
	})
}

// RespondServiceError maps an error returned by a service to a status code.
// Unknown errors are logged and answered with fallbackMessage.
func RespondServiceError(w http.ResponseWriter, err error, fallbackMessage string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		RespondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: verr.Error(), Fields: verr.Fields})
	case errors.Is(err, permissions.ErrForbidden):
		RespondError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, models.ErrProductNotFound):
		RespondError(w, http.StatusNotFound, "Product not found")
	case errors.Is(err, models.ErrProductTypeNotFound):
		RespondError(w, http.StatusNotFound, "Product type not found")
	case errors.Is(err, models.ErrLicenseNotFound):
		RespondError(w, http.StatusNotFound, "License not found")
	case errors.Is(err, models.ErrUserNotFound):
		RespondError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, license.ErrKeySpaceExhausted), errors.Is(err, domain.ErrInvalidSettings):
		log.Error().Err(err).Msg("licensing is misconfigured")
		RespondError(w, http.StatusInternalServerError, err.Error())
	default:
		log.Error().Err(err).Msg(fallbackMessage)
		RespondError(w, http.StatusInternalServerError, fallbackMessage)
	}
}

// DecodeJSON decodes the request body into the provided struct.
// Returns false if decoding fails (error already sent to client).
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// DecodeJSONOptional decodes the request body into the provided struct.
// Returns true if decoding succeeds or body is empty (io.EOF).
func DecodeJSONOptional[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// ParsePositiveIntParam extracts and validates a positive integer URL
// parameter. Returns 0 and false if invalid (error already sent).
func ParsePositiveIntParam(w http.ResponseWriter, r *http.Request, paramName, displayName string) (int, bool) {
	str := strings.TrimSpace(chi.URLParam(r, paramName))
	if str == "" {
		RespondError(w, http.StatusBadRequest, displayName+" is required")
		return 0, false
	}
	value, err := strconv.Atoi(str)
	if err != nil || value <= 0 {
		RespondError(w, http.StatusBadRequest, "Invalid "+displayName)
		return 0, false
	}
	return value, true
}

// PaginationParams holds parsed pagination parameters.
type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination extracts and validates pagination parameters from query string.
// Uses provided defaults and enforces maxLimit. Invalid values are silently ignored.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	p := PaginationParams{Limit: defaultLimit, Offset: 0}

	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			p.Limit = min(parsed, maxLimit)
		}
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			p.Offset = parsed
		}
	}

	return p
}

// queryParser collects typed query string filters and remembers the first
// invalid one.
type queryParser struct {
	r   *http.Request
	err string
}

func (q *queryParser) Int(name string) int {
	v := strings.TrimSpace(q.r.URL.Query().Get(name))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		q.fail(name)
		return 0
	}
	return n
}

func (q *queryParser) IntPtr(name string) *int {
	if strings.TrimSpace(q.r.URL.Query().Get(name)) == "" {
		return nil
	}
	n := q.Int(name)
	return &n
}

// Time accepts RFC 3339 timestamps and plain dates.
func (q *queryParser) Time(name string) *time.Time {
	v := strings.TrimSpace(q.r.URL.Query().Get(name))
	if v == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	q.fail(name)
	return nil
}

func (q *queryParser) Bool(name string) bool {
	v := strings.TrimSpace(q.r.URL.Query().Get(name))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		q.fail(name)
	}
	return b
}

func (q *queryParser) fail(name string) {
	if q.err == "" {
		q.err = "Invalid query parameter " + name
	}
}

// ok answers 400 when any parameter was invalid.
func (q *queryParser) ok(w http.ResponseWriter) bool {
	if q.err != "" {
		RespondError(w, http.StatusBadRequest, q.err)
		return false
	}
	return true
}

func numericParam(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, name)))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
