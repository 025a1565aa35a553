// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/api/ctxkeys"
)

const (
	apiKeyHeader  = "X-API-Key"
	actorIDHeader = "X-Actor-ID"
)

// APIKeyFromQuery promotes an API key query param into the X-API-Key header.
// Use this only on routes that explicitly allow query param auth.
func APIKeyFromQuery(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(apiKeyHeader) == "" {
				if apiKey := r.URL.Query().Get(param); apiKey != "" {
					r.Header.Set(apiKeyHeader, apiKey)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAPIKey rejects requests whose X-API-Key does not match the shared
// secret of the host shop. An empty configured key rejects everything.
func RequireAPIKey(apiKey func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expected := apiKey()
			provided := r.Header.Get(apiKeyHeader)
			if expected == "" || provided == "" ||
				subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
				log.Debug().Str("remote_addr", r.RemoteAddr).Str("path", r.URL.Path).Msg("rejected request with invalid api key")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Actor stores the acting user from X-Actor-ID in the request context.
// Requests without the header act as guest.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(actorIDHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			http.Error(w, "Invalid "+actorIDHeader, http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctxkeys.WithActorID(r.Context(), id)))
	})
}
