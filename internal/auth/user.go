// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConfirmationPolicy controls whether password grants require a confirmed
// email address.
type ConfirmationPolicy string

// Supported confirmation policies.
const (
	ConfirmationNone      ConfirmationPolicy = "none"
	RequireConfirmedEmail ConfirmationPolicy = "requireConfirmedEmail"
)

// User is an identity record. It is created externally (signup is out of
// scope); this engine only stamps last-sign-in timestamps on successful
// password grants.
type User struct {
	ID                uuid.UUID
	Aud               string
	Role              string
	Email             string
	EncryptedPassword string
	EmailConfirmedAt  *time.Time
	ConfirmedAt       *time.Time
	LastSignInAt      *time.Time
	BannedUntil       *time.Time
	DeletedAt         *time.Time
	CreatedAt         *time.Time
	UpdatedAt         *time.Time
}

// ActiveForSessionIssuance reports whether the user may hold live sessions:
// not soft-deleted and not currently banned.
func (u *User) ActiveForSessionIssuance(now time.Time) bool {
	if u.DeletedAt != nil {
		return false
	}
	if u.BannedUntil != nil && u.BannedUntil.After(now) {
		return false
	}
	return true
}

// EligibleForPasswordGrant reports whether the user may complete a password
// grant under the given confirmation policy. Ineligibility is surfaced to
// callers identically to a bad password.
func (u *User) EligibleForPasswordGrant(now time.Time, policy ConfirmationPolicy) bool {
	if !u.ActiveForSessionIssuance(now) {
		return false
	}
	if policy == RequireConfirmedEmail {
		return u.ConfirmedAt != nil || u.EmailConfirmedAt != nil
	}
	return true
}

// NormalizeEmail lowercases and trims an email for lookup and rate-limit
// keying.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
