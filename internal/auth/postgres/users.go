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

const userColumns = `id, aud, role, email, encrypted_password,
	email_confirmed_at, confirmed_at, last_sign_in_at, banned_until,
	deleted_at, created_at, updated_at`

// GetUserByEmail retrieves a user by normalized email (case-insensitive).
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE lower(email) = $1 AND deleted_at IS NULL
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// SaveUser persists the engine-owned user fields.
func (s *Store) SaveUser(ctx context.Context, user *auth.User) error {
	result, err := s.db.Exec(ctx, `
		UPDATE users SET last_sign_in_at = $2, updated_at = $3
		WHERE id = $1
	`, user.ID.String(), user.LastSignInAt, user.UpdatedAt)
	if err != nil {
		return oops.Code("USER_SAVE_FAILED").
			With("operation", "update user sign-in").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr            string
		aud              *string
		role             *string
		email            *string
		password         *string
		emailConfirmedAt *time.Time
		confirmedAt      *time.Time
		lastSignInAt     *time.Time
		bannedUntil      *time.Time
		deletedAt        *time.Time
		createdAt        *time.Time
		updatedAt        *time.Time
	)

	err := row.Scan(&idStr, &aud, &role, &email, &password,
		&emailConfirmedAt, &confirmedAt, &lastSignInAt, &bannedUntil,
		&deletedAt, &createdAt, &updatedAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:                id,
		Aud:               deref(aud),
		Role:              deref(role),
		Email:             deref(email),
		EncryptedPassword: deref(password),
		EmailConfirmedAt:  emailConfirmedAt,
		ConfirmedAt:       confirmedAt,
		LastSignInAt:      lastSignInAt,
		BannedUntil:       bannedUntil,
		DeletedAt:         deletedAt,
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}, nil
}

// deref returns the string behind p, or "" for NULL columns.
func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
