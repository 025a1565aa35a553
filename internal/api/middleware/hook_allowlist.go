// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/rs/zerolog/log"
)

// RequireHookAllowlist limits webhook routes to the configured caller ranges.
// prefixes is read per request so a config reload applies immediately; an
// empty list lets every caller through.
func RequireHookAllowlist(prefixes func() ([]netip.Prefix, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := prefixes()
			if err != nil {
				log.Error().Err(err).Msg("hookAllowedCIDRs is invalid, rejecting webhook")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			if len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			addr, err := parseRemoteAddrIP(r.RemoteAddr)
			if err != nil {
				log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to parse remote address for hook allowlist")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			for _, prefix := range allowed {
				if prefix.Contains(addr) {
					next.ServeHTTP(w, r)
					return
				}
			}

			log.Warn().
				Str("remote_addr", r.RemoteAddr).
				Str("ip", addr.String()).
				Msg("Blocked webhook: client IP not in hookAllowedCIDRs")
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

func parseRemoteAddrIP(remoteAddr string) (netip.Addr, error) {
	trimmed := strings.TrimSpace(remoteAddr)
	if addr, err := netip.ParseAddr(strings.Trim(trimmed, "[]")); err == nil {
		return addr.Unmap(), nil
	}

	host, _, err := net.SplitHostPort(trimmed)
	if err != nil {
		return netip.Addr{}, err
	}

	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return netip.Addr{}, err
	}
	return addr.Unmap(), nil
}
