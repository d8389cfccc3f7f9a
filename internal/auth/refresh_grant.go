// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/observability"
)

// refreshOutcome classifies the result of the locked rotation transaction.
// Kill outcomes commit their revocations before the failure is surfaced;
// plain invalidity leaves no trace in the store.
type refreshOutcome int

const (
	refreshRotated refreshOutcome = iota
	refreshInvalid
	refreshReplayed
	refreshKilled
)

// RefreshGrant rotates a refresh token: the presented token is revoked and
// the next one in the chain is issued, exactly once. The transaction is
// serialized by an advisory lock on the session id so concurrent refreshes
// for the same session observe each other's committed counter updates.
//
// Replay (a revoked or superseded token) burns the whole session: every
// token is revoked and not_after is forced to now. The caller sees the same
// generic error as for a token that never existed.
func (s *Service) RefreshGrant(ctx context.Context, rawToken string) (*GrantResult, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, oops.Code("AUTH_MISSING_REFRESH_TOKEN").
			With("reason", "refresh_token is required").
			Wrap(ErrBadRequest)
	}

	parts, err := ParseRefreshToken(rawToken)
	if err != nil {
		return nil, oops.Code("AUTH_REFRESH_MALFORMED").Wrap(ErrInvalidRefreshToken)
	}

	var (
		outcome  refreshOutcome
		user     *User
		nextRaw  string
		grantNow time.Time
	)
	err = s.store.WithSessionLock(ctx, parts.SessionID, func(tx Store) error {
		session, err := tx.GetSession(ctx, parts.SessionID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				outcome = refreshInvalid
				return nil
			}
			return oops.Code("AUTH_REFRESH_FAILED").With("operation", "get session").Wrap(err)
		}
		if session.RefreshTokenHMACKey == "" {
			outcome = refreshInvalid
			return nil
		}

		now := s.now()
		grantNow = now

		if session.ExpiredAt(now, s.opts.SessionLifetime) {
			outcome = refreshInvalid
			return nil
		}
		// Backfill not_after from the fallback lifetime so future expiry
		// checks are authoritative; persisted with the counter update below.
		if session.NotAfter == nil {
			session.NotAfter = session.ExpiresAt(s.opts.SessionLifetime)
		}

		providedHash := HashRefreshToken(rawToken, session.RefreshTokenHMACKey)
		existing, err := tx.GetRefreshTokenByHash(ctx, parts.SessionID, providedHash)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				return oops.Code("AUTH_REFRESH_FAILED").With("operation", "get refresh token").Wrap(err)
			}
			// No matching row. A counter behind the session's means a token
			// from earlier in the chain is being reused: burn the session.
			if parts.Counter < session.RefreshTokenCounter {
				outcome = refreshReplayed
				return s.killSession(ctx, tx, session, now)
			}
			outcome = refreshInvalid
			return nil
		}

		if existing.Revoked || parts.Counter < session.RefreshTokenCounter {
			outcome = refreshReplayed
			return s.killSession(ctx, tx, session, now)
		}

		// Out-of-order but not behind: non-conforming, not necessarily
		// malicious.
		if parts.Counter != session.RefreshTokenCounter {
			outcome = refreshInvalid
			return nil
		}

		if !existing.WithinIdleTimeout(now, s.opts.RefreshTokenIdleTimeout) {
			outcome = refreshKilled
			return s.killSession(ctx, tx, session, now)
		}

		owner, err := tx.GetUserByID(ctx, session.UserID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				return oops.Code("AUTH_REFRESH_FAILED").With("operation", "get user").Wrap(err)
			}
			outcome = refreshKilled
			return s.killSession(ctx, tx, session, now)
		}
		if !owner.ActiveForSessionIssuance(now) {
			outcome = refreshKilled
			return s.killSession(ctx, tx, session, now)
		}

		existing.Revoked = true
		existing.UpdatedAt = now
		if err := tx.SaveRefreshToken(ctx, existing); err != nil {
			return oops.Code("AUTH_REFRESH_FAILED").With("operation", "revoke matched token").Wrap(err)
		}

		issued := IssueRefreshToken(session.ID, session.RefreshTokenHMACKey, session.RefreshTokenCounter)
		next := &RefreshToken{
			SessionID: session.ID,
			UserID:    owner.ID,
			TokenHash: issued.TokenHash,
			Parent:    providedHash,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateRefreshToken(ctx, next); err != nil {
			return oops.Code("AUTH_REFRESH_FAILED").With("operation", "create next token").Wrap(err)
		}

		session.RefreshTokenCounter = issued.Counter
		session.RefreshedAt = now
		session.UpdatedAt = now
		if err := tx.SaveSession(ctx, session); err != nil {
			return oops.Code("AUTH_REFRESH_FAILED").With("operation", "update session").Wrap(err)
		}

		outcome = refreshRotated
		user = owner
		nextRaw = issued.RawToken
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch outcome {
	case refreshRotated:
		return s.buildGrantResult(user, nextRaw, grantNow)
	case refreshReplayed:
		observability.RecordReplayDetected()
		s.logger.Warn("refresh token replay detected, session revoked",
			"session_id", parts.SessionID.String())
		return nil, oops.Code("AUTH_REFRESH_REPLAYED").Wrap(ErrInvalidRefreshToken)
	default:
		return nil, oops.Code("AUTH_REFRESH_INVALID").Wrap(ErrInvalidRefreshToken)
	}
}

// killSession revokes the session's entire refresh-token set and retires the
// session. Run inside the locked transaction; the caller's nil return lets
// these writes commit before the failure is reported.
func (s *Service) killSession(ctx context.Context, tx Store, session *Session, now time.Time) error {
	if err := tx.RevokeSessionRefreshTokens(ctx, session.ID, now); err != nil {
		return oops.Code("AUTH_SESSION_KILL_FAILED").With("operation", "revoke session tokens").Wrap(err)
	}
	session.NotAfter = &now
	session.UpdatedAt = now
	if err := tx.SaveSession(ctx, session); err != nil {
		return oops.Code("AUTH_SESSION_KILL_FAILED").With("operation", "retire session").Wrap(err)
	}
	return nil
}
