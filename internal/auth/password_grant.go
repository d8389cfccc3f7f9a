// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/observability"
)

// PasswordGrantInput carries a password-grant request. IP and UserAgent are
// best-effort request metadata.
type PasswordGrantInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// PasswordGrant authenticates a user by email and password and opens a new
// session with refresh token #1. Unknown email, bad password, and ineligible
// user all fail with the same generic error so callers cannot enumerate
// accounts.
func (s *Service) PasswordGrant(ctx context.Context, input PasswordGrantInput) (*GrantResult, error) {
	email := NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, oops.Code("AUTH_MISSING_CREDENTIALS").
			With("reason", "email and password are required").
			Wrap(ErrBadRequest)
	}

	keys := PasswordGrantRateLimitKeys(input.IP, email)
	now := s.now()

	if s.limiter.IsBlocked(keys, now) {
		observability.RecordRateLimited()
		return nil, oops.Code("AUTH_RATE_LIMITED").Wrap(ErrRateLimited)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Verify against a dummy hash so response time stays consistent
			// with the real-user path.
			_, _ = s.hasher.Verify(input.Password, dummyPasswordHash) //nolint:errcheck // timing equalization only
			return nil, s.passwordGrantFailure(keys, now)
		}
		return nil, oops.Code("AUTH_PASSWORD_GRANT_FAILED").With("operation", "get user by email").Wrap(err)
	}

	if user.EncryptedPassword == "" {
		return nil, s.passwordGrantFailure(keys, now)
	}

	// Any verification error is treated as a mismatch, not propagated.
	valid, verifyErr := s.hasher.Verify(input.Password, user.EncryptedPassword)
	if verifyErr != nil || !valid {
		return nil, s.passwordGrantFailure(keys, now)
	}

	if !user.EligibleForPasswordGrant(now, s.opts.ConfirmationPolicy) {
		return nil, s.passwordGrantFailure(keys, now)
	}

	var rawToken string
	err = s.store.WithinTransaction(ctx, func(tx Store) error {
		user.LastSignInAt = &now
		user.UpdatedAt = &now
		if err := tx.SaveUser(ctx, user); err != nil {
			return oops.Code("AUTH_PASSWORD_GRANT_FAILED").With("operation", "stamp sign-in").Wrap(err)
		}

		session, err := NewSession(user.ID, input.UserAgent, s.opts.SessionLifetime, now)
		if err != nil {
			return err
		}
		if err := tx.CreateSession(ctx, session); err != nil {
			return oops.Code("AUTH_PASSWORD_GRANT_FAILED").With("operation", "create session").Wrap(err)
		}

		// Best-effort: a store may not support typed IP columns, and a bad
		// address must not abort the login.
		if input.IP != "" {
			if w, ok := tx.(SessionIPWriter); ok {
				if err := w.WriteSessionIP(ctx, session.ID, input.IP); err != nil {
					s.logger.Debug("failed to persist session ip",
						"session_id", session.ID.String(), "error", err)
				}
			}
		}

		issued := IssueRefreshToken(session.ID, session.RefreshTokenHMACKey, session.RefreshTokenCounter)
		token := &RefreshToken{
			SessionID: session.ID,
			UserID:    user.ID,
			TokenHash: issued.TokenHash,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateRefreshToken(ctx, token); err != nil {
			return oops.Code("AUTH_PASSWORD_GRANT_FAILED").With("operation", "create refresh token").Wrap(err)
		}

		session.RefreshTokenCounter = issued.Counter
		session.UpdatedAt = now
		if err := tx.SaveSession(ctx, session); err != nil {
			return oops.Code("AUTH_PASSWORD_GRANT_FAILED").With("operation", "update session counter").Wrap(err)
		}

		rawToken = issued.RawToken
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.limiter.RecordSuccess(keys)

	return s.buildGrantResult(user, rawToken, now)
}

// passwordGrantFailure records a rate-limit failure and returns the generic
// invalid-credentials error.
func (s *Service) passwordGrantFailure(keys []string, now time.Time) error {
	s.limiter.RecordFailure(keys, now)
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}
