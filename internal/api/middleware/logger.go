// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

var (
	RequestID       = middleware.RequestID
	Recoverer       = middleware.Recoverer
	RealIP          = middleware.RealIP
	ThrottleBacklog = middleware.ThrottleBacklog
)

// Logger writes one access record per request and turns panics into a 500.
func Logger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}

					logger.Error().
						Str("type", "error").
						Timestamp().
						Interface("recover_info", rec).
						Str("stack", string(debug.Stack())).
						Msg(fmt.Sprintf("panic: %v", rec))

					if ww.Status() == 0 {
						ww.WriteHeader(http.StatusInternalServerError)
					}
					return
				}

				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				ev := logger.Trace()
				if status >= http.StatusInternalServerError {
					ev = logger.Warn()
				}
				ev.
					Str("type", "access").
					Timestamp().
					Fields(map[string]any{
						"remote_ip":  r.RemoteAddr,
						"url":        r.URL.Path,
						"proto":      r.Proto,
						"method":     r.Method,
						"user_agent": r.Header.Get("User-Agent"),
						"request_id": middleware.GetReqID(r.Context()),
						"status":     status,
						"latency_ms": float64(time.Since(start).Nanoseconds()) / 1e6,
						"bytes_in":   r.ContentLength,
						"bytes_out":  ww.BytesWritten(),
					}).
					Msg("incoming_request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
