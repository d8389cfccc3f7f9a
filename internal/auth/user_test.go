// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/keygate/keygate/internal/auth"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", auth.NormalizeEmail("  USER@Example.COM  "))
	assert.Equal(t, "", auth.NormalizeEmail("   "))
}

func TestUser_ActiveForSessionIssuance(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		user auth.User
		want bool
	}{
		{"plain user", auth.User{ID: uuid.New()}, true},
		{"soft-deleted", auth.User{DeletedAt: &past}, false},
		{"currently banned", auth.User{BannedUntil: &future}, false},
		{"ban expired", auth.User{BannedUntil: &past}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.ActiveForSessionIssuance(now))
		})
	}
}

func TestUser_EligibleForPasswordGrant(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		user   auth.User
		policy auth.ConfirmationPolicy
		want   bool
	}{
		{"unconfirmed under none policy", auth.User{}, auth.ConfirmationNone, true},
		{"unconfirmed under confirmation policy", auth.User{}, auth.RequireConfirmedEmail, false},
		{"confirmed_at satisfies policy", auth.User{ConfirmedAt: &past}, auth.RequireConfirmedEmail, true},
		{"email_confirmed_at satisfies policy", auth.User{EmailConfirmedAt: &past}, auth.RequireConfirmedEmail, true},
		{"deleted user never eligible", auth.User{DeletedAt: &past, ConfirmedAt: &past}, auth.ConfirmationNone, false},
		{"banned user never eligible", auth.User{BannedUntil: &future, ConfirmedAt: &past}, auth.ConfirmationNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.EligibleForPasswordGrant(now, tt.policy))
		})
	}
}
