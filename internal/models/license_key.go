// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// LicenseKeyLength is the length of a canonical license key.
const LicenseKeyLength = 24

// ShortKeyLength is how much of a key is shown to non-owners.
const ShortKeyLength = 10

// keyAlphabet leaves out characters that are easy to misread (0/O, 1/I/L).
const keyAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NormalizeKey strips dashes and whitespace and upper-cases the result.
// Keys that do not end up as exactly LicenseKeyLength ASCII letters and
// digits are rejected with ErrInvalidKeyFormat.
func NormalizeKey(key string) (string, error) {
	normalized := strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, key)

	for _, r := range normalized {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", errors.Wrapf(ErrInvalidKeyFormat, "unexpected character %q", r)
		}
	}
	if len(normalized) != LicenseKeyLength {
		return "", errors.Wrapf(ErrInvalidKeyFormat, "expected %d characters, got %d", LicenseKeyLength, len(normalized))
	}

	return normalized, nil
}

// GenerateKey returns a random canonical license key.
func GenerateKey() (string, error) {
	var sb strings.Builder
	sb.Grow(LicenseKeyLength)

	limit := big.NewInt(int64(len(keyAlphabet)))
	for range LicenseKeyLength {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", errors.Wrap(err, "failed to generate license key")
		}
		sb.WriteByte(keyAlphabet[n.Int64()])
	}

	return sb.String(), nil
}

// ShortKey returns the prefix of key that is safe to show to anyone.
func ShortKey(key string) string {
	if len(key) <= ShortKeyLength {
		return key
	}
	return key[:ShortKeyLength]
}
