// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"net/url"
	"strings"
)

const RedactedStr = "<redacted>"

// RedactString replaces a non-empty string with RedactedStr
func RedactString(s string) string {
	if len(s) == 0 {
		return ""
	}

	return RedactedStr
}

// MaskLicenseKey keeps the first 8 characters of a key for log correlation.
func MaskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}

// RedactURL hides the userinfo and query of a DSN or service URL so it can be
// logged. Unparseable input is fully redacted.
func RedactURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return RedactedStr
	}

	if u.User != nil {
		u.User = url.User(RedactedStr)
	}
	if u.RawQuery != "" {
		u.RawQuery = ""
	}

	return u.String()
}
