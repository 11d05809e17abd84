// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"

	"github.com/pluginstore/registry/internal/models"
)

// normalizeVersion parses a reported plugin version and returns its canonical
// form, so "v3.2" is stored as "3.2.0".
func normalizeVersion(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.Wrap(models.ErrInvalidVersion, "empty version")
	}

	v, err := semver.NewVersion(raw)
	if err != nil {
		return "", errors.Wrapf(models.ErrInvalidVersion, "%q", raw)
	}
	return v.String(), nil
}

// withinAllowedVersion reports whether the last seen version is covered by the
// last allowed one. It is nil unless both are known and parse.
func withinAllowedVersion(last, allowed *string) *bool {
	if last == nil || allowed == nil {
		return nil
	}

	lastV, err := semver.NewVersion(*last)
	if err != nil {
		return nil
	}
	allowedV, err := semver.NewVersion(*allowed)
	if err != nil {
		return nil
	}

	within := !lastV.GreaterThan(allowedV)
	return &within
}
