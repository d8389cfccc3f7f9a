// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

// CreateSession stores a new session. The client IP is written separately
// through WriteSessionIP because the column is inet-typed.
func (s *Store) CreateSession(ctx context.Context, session *auth.Session) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (id, user_id, created_at, updated_at, refreshed_at,
			not_after, user_agent, refresh_token_hmac_key, refresh_token_counter)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		session.ID.String(),
		session.UserID.String(),
		session.CreatedAt,
		session.UpdatedAt,
		session.RefreshedAt,
		session.NotAfter,
		session.UserAgent,
		session.RefreshTokenHMACKey,
		session.RefreshTokenCounter,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*auth.Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, created_at, updated_at, refreshed_at, not_after,
			user_agent, host(ip), refresh_token_hmac_key, refresh_token_counter
		FROM sessions
		WHERE id = $1
	`, id.String())

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by id").
			With("id", id.String()).
			Wrap(err)
	}
	return session, nil
}

// SaveSession persists session mutations: counter, timestamps, not_after.
func (s *Store) SaveSession(ctx context.Context, session *auth.Session) error {
	result, err := s.db.Exec(ctx, `
		UPDATE sessions
		SET updated_at = $2, refreshed_at = $3, not_after = $4,
			refresh_token_counter = $5
		WHERE id = $1
	`,
		session.ID.String(),
		session.UpdatedAt,
		session.RefreshedAt,
		session.NotAfter,
		session.RefreshTokenCounter,
	)
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").
			With("operation", "update session").
			With("id", session.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", session.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanSession scans a single row into a Session.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		idStr       string
		userIDStr   string
		createdAt   time.Time
		updatedAt   time.Time
		refreshedAt time.Time
		notAfter    *time.Time
		userAgent   *string
		ip          *string
		hmacKey     *string
		counter     *int64
	)

	err := row.Scan(&idStr, &userIDStr, &createdAt, &updatedAt, &refreshedAt,
		&notAfter, &userAgent, &ip, &hmacKey, &counter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "scan session").
			Wrap(err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", idStr).
			Wrap(err)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	session := &auth.Session{
		ID:          id,
		UserID:      userID,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		RefreshedAt: refreshedAt,
		NotAfter:    notAfter,
		UserAgent:   deref(userAgent),
		IP:          deref(ip),
	}
	if hmacKey != nil {
		session.RefreshTokenHMACKey = *hmacKey
	}
	if counter != nil {
		session.RefreshTokenCounter = *counter
	}
	return session, nil
}
