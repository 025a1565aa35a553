// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/digiprod/internal/domain"
	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/permissions"
	"github.com/autobrr/digiprod/internal/services/license"
)

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		data     any
		wantBody string
	}{
		{name: "object", status: http.StatusOK, data: map[string]string{"message": "hello"}, wantBody: `{"message":"hello"}`},
		{name: "nil data", status: http.StatusNoContent},
		{name: "error", status: http.StatusBadRequest, data: ErrorResponse{Error: "bad request"}, wantBody: `{"error":"bad request"}`},
		{name: "slice", status: http.StatusOK, data: []int{1, 2, 3}, wantBody: `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			RespondJSON(w, tt.status, tt.data)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
			} else {
				assert.Empty(t, w.Body.String())
			}
		})
	}
}

func TestRespondServiceError(t *testing.T) {
	t.Parallel()

	verr := &models.ValidationError{Entity: "product", Fields: []models.FieldError{{Field: "sku", Rule: "unique", Message: "is already in use"}}}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "validation", err: fmt.Errorf("save: %w", verr), wantStatus: http.StatusUnprocessableEntity},
		{name: "forbidden", err: fmt.Errorf("%w: cannot manage licenses", permissions.ErrForbidden), wantStatus: http.StatusForbidden, wantError: "Forbidden"},
		{name: "product not found", err: models.ErrProductNotFound, wantStatus: http.StatusNotFound, wantError: "Product not found"},
		{name: "type not found", err: models.ErrProductTypeNotFound, wantStatus: http.StatusNotFound, wantError: "Product type not found"},
		{name: "license not found", err: models.ErrLicenseNotFound, wantStatus: http.StatusNotFound, wantError: "License not found"},
		{name: "user not found", err: models.ErrUserNotFound, wantStatus: http.StatusNotFound, wantError: "User not found"},
		{name: "key space", err: license.ErrKeySpaceExhausted, wantStatus: http.StatusInternalServerError, wantError: license.ErrKeySpaceExhausted.Error()},
		{name: "settings", err: domain.ErrInvalidSettings, wantStatus: http.StatusInternalServerError, wantError: domain.ErrInvalidSettings.Error()},
		{name: "unknown", err: errors.New("disk on fire"), wantStatus: http.StatusInternalServerError, wantError: "Failed to do it"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			RespondServiceError(w, tt.err, "Failed to do it")
			require.Equal(t, tt.wantStatus, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			}
			if tt.wantStatus == http.StatusUnprocessableEntity {
				assert.Equal(t, verr.Fields, resp.Fields)
			} else {
				assert.Empty(t, resp.Fields)
			}
		})
	}
}

func TestParsePositiveIntParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		param  string
		wantID int
		wantOK bool
	}{
		{name: "valid", param: "42", wantID: 42, wantOK: true},
		{name: "zero", param: "0"},
		{name: "negative", param: "-1"},
		{name: "not a number", param: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := chi.NewRouter()
			var (
				gotID int
				gotOK bool
			)
			r.Get("/licenses/{id}", func(w http.ResponseWriter, r *http.Request) {
				gotID, gotOK = ParsePositiveIntParam(w, r, "id", "license ID")
			})

			req := httptest.NewRequest(http.MethodGet, "/licenses/"+tt.param, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantID, gotID)
			assert.Equal(t, tt.wantOK, gotOK)
			if !tt.wantOK {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name   string
		body   string
		wantOK bool
	}{
		{name: "valid", body: `{"name":"widget"}`, wantOK: true},
		{name: "invalid", body: `{invalid}`},
		{name: "empty", body: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var got payload
			ok := DecodeJSON(w, req, &got)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, "widget", got.Name)
			} else {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestDecodeJSONOptionalAcceptsEmptyBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	w := httptest.NewRecorder()

	var got struct{}
	assert.True(t, DecodeJSONOptional(w, req, &got))
}

func TestParsePagination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		want  PaginationParams
	}{
		{query: "", want: PaginationParams{Limit: 100}},
		{query: "limit=20&offset=40", want: PaginationParams{Limit: 20, Offset: 40}},
		{query: "limit=5000", want: PaginationParams{Limit: 1000}},
		{query: "limit=-1&offset=-5", want: PaginationParams{Limit: 100}},
		{query: "limit=abc", want: PaginationParams{Limit: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			assert.Equal(t, tt.want, ParsePagination(req, 100, 1000))
		})
	}
}

func TestQueryParser(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?productId=3&orderId=9&createdAfter=2025-01-02&createdBefore=2025-02-01T10:00:00Z&editable=true", nil)
	qp := &queryParser{r: req}

	assert.Equal(t, 3, qp.Int("productId"))
	require.NotNil(t, qp.IntPtr("orderId"))
	assert.Nil(t, qp.IntPtr("ownerId"))
	after := qp.Time("createdAfter")
	require.NotNil(t, after)
	assert.Equal(t, 2, after.Day())
	assert.NotNil(t, qp.Time("createdBefore"))
	assert.True(t, qp.Bool("editable"))
	assert.True(t, qp.ok(httptest.NewRecorder()))

	bad := &queryParser{r: httptest.NewRequest(http.MethodGet, "/?productId=x&createdAfter=soon", nil)}
	bad.Int("productId")
	bad.Time("createdAfter")

	w := httptest.NewRecorder()
	require.False(t, bad.ok(w))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "productId", "first invalid parameter is reported")
}
