// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Session anchors a chain of refresh tokens to a user. It owns the HMAC
// secret that binds tokens to it and a refresh counter that only increases.
type Session struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	CreatedAt           time.Time
	UpdatedAt           time.Time
	RefreshedAt         time.Time
	NotAfter            *time.Time // absolute cutoff; nil means fallback lifetime applies
	UserAgent           string
	IP                  string
	RefreshTokenHMACKey string
	RefreshTokenCounter int64
}

// NewSession creates a session with a fresh HMAC secret and a zero refresh
// counter. lifetime <= 0 leaves NotAfter unset.
func NewSession(userID uuid.UUID, userAgent string, lifetime time.Duration, now time.Time) (*Session, error) {
	if userID == uuid.Nil {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be nil")
	}

	s := &Session{
		ID:                  uuid.New(),
		UserID:              userID,
		CreatedAt:           now,
		UpdatedAt:           now,
		RefreshedAt:         now,
		UserAgent:           userAgent,
		RefreshTokenHMACKey: NewSessionSecret(),
		RefreshTokenCounter: 0,
	}
	if lifetime > 0 {
		notAfter := now.Add(lifetime)
		s.NotAfter = &notAfter
	}
	return s, nil
}

// ExpiresAt resolves the session's effective expiry: an explicit NotAfter
// wins; otherwise CreatedAt plus the fallback lifetime. Returns nil when
// neither applies (the session never expires).
func (s *Session) ExpiresAt(fallbackLifetime time.Duration) *time.Time {
	if s.NotAfter != nil {
		return s.NotAfter
	}
	if fallbackLifetime <= 0 {
		return nil
	}
	expiry := s.CreatedAt.Add(fallbackLifetime)
	return &expiry
}

// ExpiredAt reports whether the session is dead at the given time. A dead
// session must not mint or accept refresh tokens.
func (s *Session) ExpiredAt(now time.Time, fallbackLifetime time.Duration) bool {
	expiry := s.ExpiresAt(fallbackLifetime)
	return expiry != nil && !expiry.After(now)
}
