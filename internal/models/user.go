// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

// User is the acting account as asserted by the authentication layer.
type User struct {
	Email string `json:"email"`
	ID    int64  `json:"id"`
}
