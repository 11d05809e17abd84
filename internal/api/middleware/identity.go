// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pluginstore/registry/internal/api/ctxkeys"
	"github.com/pluginstore/registry/internal/models"
)

const (
	HeaderUserID    = "X-Registry-User-Id"
	HeaderUserEmail = "X-Registry-User-Email"
)

// RequireTrustedProxy rejects requests whose peer address is not inside one
// of prefixes. An empty list rejects everything.
func RequireTrustedProxy(prefixes []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, err := parseRemoteAddrIP(r.RemoteAddr)
			if err != nil {
				log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to parse remote address for trusted proxy check")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			for _, prefix := range prefixes {
				if prefix.Contains(addr) {
					next.ServeHTTP(w, r)
					return
				}
			}

			log.Warn().
				Str("remote_addr", r.RemoteAddr).
				Str("ip", addr.String()).
				Msg("Blocked request from untrusted peer: client IP not in trustedProxyCidrs")
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

// Identity reads the acting user from the proxy headers and stores it in the
// request context. Requests without a valid user id are unauthorized.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		id, err := strconv.ParseInt(rawID, 10, 64)
		if rawID == "" || err != nil || id <= 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		user := models.User{
			ID:    id,
			Email: strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		}
		ctx := context.WithValue(r.Context(), ctxkeys.User, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the user stored by Identity.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(ctxkeys.User).(models.User)
	return user, ok
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
