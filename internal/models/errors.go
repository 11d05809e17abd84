// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidKeyFormat     = errors.New("invalid license key format")
	ErrLicenseNotFound      = errors.New("license not found")
	ErrInvalidPluginHandle  = errors.New("invalid plugin handle")
	ErrInvalidEditionHandle = errors.New("invalid edition handle")
	ErrAlreadyClaimed       = errors.New("license has already been claimed")
	ErrInvalidSortField     = errors.New("invalid sort field")
	ErrCmsLicenseNotFound   = errors.New("cms license not found")
	ErrPluginNotFound       = errors.New("plugin not found")
	ErrEditionNotFound      = errors.New("edition not found")
	ErrDuplicateLicenseKey  = errors.New("license key already exists")
	ErrInvalidVersion       = errors.New("invalid plugin version")
)

// PersistenceError reports that the store rejected a write for a record that
// passed validation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s license: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
