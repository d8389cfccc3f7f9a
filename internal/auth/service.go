// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Options configures the rotation engine.
type Options struct {
	// AccessTokenTTL bounds the lifetime of signed bearer tokens.
	AccessTokenTTL time.Duration

	// SessionLifetime is the fallback session lifetime used to compute
	// not_after at creation and to resolve expiry for sessions that predate
	// the setting. <= 0 means sessions have no absolute cutoff.
	SessionLifetime time.Duration

	// RefreshTokenIdleTimeout bounds how long an issued token may sit unused
	// before its whole session is retired. <= 0 disables the check.
	RefreshTokenIdleTimeout time.Duration

	// Audience is the claim stamped on bearer tokens; the user's stored
	// audience is used when empty.
	Audience string

	// Issuer is the claim stamped on bearer tokens.
	Issuer string

	// ConfirmationPolicy gates password grants on email confirmation.
	ConfirmationPolicy ConfirmationPolicy
}

// Service orchestrates the password-grant and refresh-grant flows, session
// lifecycle, and replay response.
type Service struct {
	store   Store
	hasher  PasswordHasher
	signer  TokenSigner
	limiter *PasswordGrantLimiter
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a Service. All dependencies are required.
func NewService(store Store, hasher PasswordHasher, signer TokenSigner, limiter *PasswordGrantLimiter, opts Options, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("credential store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("password hasher is required")
	}
	if signer == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("token signer is required")
	}
	if limiter == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("rate limiter is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("logger is required")
	}
	return &Service{
		store:   store,
		hasher:  hasher,
		signer:  signer,
		limiter: limiter,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// GrantResult is the outcome of a successful grant: a signed bearer token,
// the raw refresh token (recoverable exactly once), and the user projection.
type GrantResult struct {
	User         *User
	AccessToken  string
	TokenType    string
	ExpiresIn    int
	RefreshToken string
}

// CurrentUser re-loads a user for an authenticated request and requires it to
// still be active: freshly banned or deleted users are rejected even with an
// unexpired bearer token.
func (s *Service) CurrentUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_USER_NOT_FOUND").Wrap(ErrInvalidCredentials)
		}
		return nil, oops.Code("AUTH_USER_LOOKUP_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	if !user.ActiveForSessionIssuance(s.now()) {
		return nil, oops.Code("AUTH_USER_INACTIVE").Wrap(ErrInvalidCredentials)
	}
	return user, nil
}

// Logout retires the session behind a refresh token: the matched token is
// revoked, then the session's whole token set, then the session itself.
// Unparseable, unknown, or mismatched tokens are treated as already logged
// out; logout never reveals whether a token was valid.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	parts, err := ParseRefreshToken(rawToken)
	if err != nil {
		return nil
	}

	err = s.store.WithinTransaction(ctx, func(tx Store) error {
		session, err := tx.GetSession(ctx, parts.SessionID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return oops.Code("AUTH_LOGOUT_FAILED").With("operation", "get session").Wrap(err)
		}
		if session.RefreshTokenHMACKey == "" {
			return nil
		}

		tokenHash := HashRefreshToken(rawToken, session.RefreshTokenHMACKey)
		token, err := tx.GetRefreshTokenByHash(ctx, parts.SessionID, tokenHash)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return oops.Code("AUTH_LOGOUT_FAILED").With("operation", "get refresh token").Wrap(err)
		}

		now := s.now()
		token.Revoked = true
		token.UpdatedAt = now
		if err := tx.SaveRefreshToken(ctx, token); err != nil {
			return oops.Code("AUTH_LOGOUT_FAILED").With("operation", "revoke refresh token").Wrap(err)
		}
		if err := tx.RevokeSessionRefreshTokens(ctx, parts.SessionID, now); err != nil {
			return oops.Code("AUTH_LOGOUT_FAILED").With("operation", "revoke session tokens").Wrap(err)
		}
		session.NotAfter = &now
		session.UpdatedAt = now
		if err := tx.SaveSession(ctx, session); err != nil {
			return oops.Code("AUTH_LOGOUT_FAILED").With("operation", "retire session").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// buildGrantResult signs a bearer token for the user and assembles the grant
// response.
func (s *Service) buildGrantResult(user *User, rawRefreshToken string, now time.Time) (*GrantResult, error) {
	claims := NewAccessClaims(user, s.opts.Audience, s.opts.Issuer, s.opts.AccessTokenTTL, now)
	accessToken, err := s.signer.Sign(claims)
	if err != nil {
		return nil, oops.Code("AUTH_SIGN_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	return &GrantResult{
		User:         user,
		AccessToken:  accessToken,
		TokenType:    "bearer",
		ExpiresIn:    int(s.opts.AccessTokenTTL / time.Second),
		RefreshToken: rawRefreshToken,
	}, nil
}
