// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package httphelpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeBasePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// Empty and root cases
		{"empty string", "", ""},
		{"just slash", "/", ""},
		{"just whitespace", "   ", ""},

		// Normal paths
		{"simple path", "/api", "/api"},
		{"path with trailing slash", "/api/", "/api"},
		{"path without leading slash", "api", "/api"},
		{"path without leading slash with trailing", "api/", "/api"},

		// Nested paths
		{"nested path", "/api/v1", "/api/v1"},
		{"nested path with trailing slash", "/api/v1/", "/api/v1"},
		{"nested path without leading slash", "api/v1", "/api/v1"},

		// Whitespace handling
		{"leading whitespace", "  /api", "/api"},
		{"trailing whitespace", "/api  ", "/api"},
		{"both whitespace", "  /api  ", "/api"},

		// Edge cases
		{"multiple trailing slashes", "/api///", "/api"},
		{"just multiple slashes", "///", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := NormalizeBasePath(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestJoinBasePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		basePath string
		suffix   string
		expected string
	}{
		// Empty base path
		{"empty base, empty suffix", "", "", "/"},
		{"empty base, root suffix", "", "/", "/"},
		{"empty base, relative suffix", "", "foo", "/foo"},
		{"empty base, absolute suffix", "", "/foo", "/foo"},

		// Non-empty base path
		{"with base, empty suffix", "/api", "", "/api"},
		{"with base, relative suffix", "/api", "v1", "/api/v1"},
		{"with base, absolute suffix", "/api", "/v1", "/api/v1"},

		// Nested paths
		{"nested base, relative suffix", "/api/v1", "users", "/api/v1/users"},
		{"nested base, absolute suffix", "/api/v1", "/users", "/api/v1/users"},
		{"nested base and suffix", "/api/v1", "users/123", "/api/v1/users/123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := JoinBasePath(tt.basePath, tt.suffix)
			assert.Equal(t, tt.expected, result)
		})
	}
}
