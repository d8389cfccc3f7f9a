// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

// CreateRefreshToken stores a new refresh-token row. Token hashes are unique
// across the table; a collision means the same token was issued twice and is
// reported distinctly.
func (s *Store) CreateRefreshToken(ctx context.Context, token *auth.RefreshToken) error {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO refresh_tokens (session_id, user_id, token, parent, revoked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		token.SessionID.String(),
		token.UserID.String(),
		token.TokenHash,
		nullable(token.Parent),
		token.Revoked,
		token.CreatedAt,
		token.UpdatedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("REFRESH_TOKEN_DUPLICATE").
				With("session_id", token.SessionID.String()).
				Wrap(err)
		}
		return oops.Code("REFRESH_TOKEN_CREATE_FAILED").
			With("operation", "insert refresh token").
			With("session_id", token.SessionID.String()).
			Wrap(err)
	}
	token.ID = id
	return nil
}

// GetRefreshTokenByHash retrieves a session's token row by stored hash.
func (s *Store) GetRefreshTokenByHash(ctx context.Context, sessionID uuid.UUID, tokenHash string) (*auth.RefreshToken, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, session_id, user_id, token, parent, revoked, created_at, updated_at
		FROM refresh_tokens
		WHERE session_id = $1 AND token = $2
	`, sessionID.String(), tokenHash)

	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_GET_FAILED").
			With("operation", "get refresh token by hash").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	return token, nil
}

// SaveRefreshToken persists token mutations (revoked, updated_at).
func (s *Store) SaveRefreshToken(ctx context.Context, token *auth.RefreshToken) error {
	result, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = $2, updated_at = $3
		WHERE id = $1
	`, token.ID, token.Revoked, token.UpdatedAt)
	if err != nil {
		return oops.Code("REFRESH_TOKEN_SAVE_FAILED").
			With("operation", "update refresh token").
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// RevokeSessionRefreshTokens marks every token of the session revoked.
// Zero affected rows is a valid state, not an error.
func (s *Store) RevokeSessionRefreshTokens(ctx context.Context, sessionID uuid.UUID, now time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, updated_at = $2
		WHERE session_id = $1
	`, sessionID.String(), now)
	if err != nil {
		return oops.Code("REFRESH_TOKEN_REVOKE_ALL_FAILED").
			With("operation", "revoke session refresh tokens").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	return nil
}

// scanRefreshToken scans a single row into a RefreshToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanRefreshToken(row pgx.Row) (*auth.RefreshToken, error) {
	var (
		id           int64
		sessionIDStr string
		userIDStr    string
		tokenHash    string
		parent       *string
		revoked      bool
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(&id, &sessionIDStr, &userIDStr, &tokenHash, &parent,
		&revoked, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("REFRESH_TOKEN_SCAN_FAILED").
			With("operation", "scan refresh token").
			Wrap(err)
	}

	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_SESSION_ID").
			With("session_id", sessionIDStr).
			Wrap(err)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_USER_ID").
			With("user_id", userIDStr).
			Wrap(err)
	}

	return &auth.RefreshToken{
		ID:        id,
		SessionID: sessionID,
		UserID:    userID,
		TokenHash: tokenHash,
		Parent:    deref(parent),
		Revoked:   revoked,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
