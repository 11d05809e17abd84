// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginstore/registry/internal/models"
)

func TestRequireTrustedProxy(t *testing.T) {
	t.Parallel()

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	loopback := []netip.Prefix{netip.MustParsePrefix("127.0.0.1/32"), netip.MustParsePrefix("::1/128")}

	tests := []struct {
		name       string
		prefixes   []netip.Prefix
		remoteAddr string
		wantStatus int
	}{
		{name: "allows ipv4 proxy", prefixes: loopback, remoteAddr: "127.0.0.1:54321", wantStatus: http.StatusOK},
		{name: "allows ipv6 proxy", prefixes: loopback, remoteAddr: "[::1]:54321", wantStatus: http.StatusOK},
		{name: "allows mapped ipv4", prefixes: loopback, remoteAddr: "[::ffff:127.0.0.1]:80", wantStatus: http.StatusOK},
		{name: "allows bare address", prefixes: loopback, remoteAddr: "127.0.0.1", wantStatus: http.StatusOK},
		{name: "blocks outside range", prefixes: loopback, remoteAddr: "203.0.113.10:54321", wantStatus: http.StatusForbidden},
		{name: "blocks without prefixes", remoteAddr: "127.0.0.1:54321", wantStatus: http.StatusForbidden},
		{name: "blocks unparsable address", prefixes: loopback, remoteAddr: "bogus", wantStatus: http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/licenses", nil)
			req.RemoteAddr = tc.remoteAddr
			rec := httptest.NewRecorder()

			RequireTrustedProxy(tc.prefixes)(inner).ServeHTTP(rec, req)
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	var seen models.User
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		require.True(t, ok)
		seen = user
		w.WriteHeader(http.StatusOK)
	})

	t.Run("stores user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderUserID, " 42 ")
		req.Header.Set(HeaderUserEmail, "dev@example.com")
		rec := httptest.NewRecorder()

		Identity(inner).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.User{ID: 42, Email: "dev@example.com"}, seen)
	})

	for _, raw := range []string{"", "abc", "0", "-3"} {
		t.Run("rejects id "+raw, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(HeaderUserID, raw)
			rec := httptest.NewRecorder()

			Identity(inner).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestUserFromContextMissing(t *testing.T) {
	t.Parallel()

	_, ok := UserFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
