// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is one row per issued opaque token. Only the HMAC hash of the
// raw token is ever stored; Parent preserves the previous token's hash for
// lineage audit.
type RefreshToken struct {
	ID        int64
	SessionID uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	Parent    string
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WithinIdleTimeout reports whether the token's age is inside the configured
// idle window. timeout <= 0 disables the check.
func (t *RefreshToken) WithinIdleTimeout(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	return t.CreatedAt.Add(timeout).After(now)
}
