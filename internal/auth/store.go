// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the minimal credential store required by the rotation engine.
// Implementations must provide transactional read-modify-write: inside
// WithinTransaction and WithSessionLock the callback receives a Store whose
// operations share one transaction.
type Store interface {
	// GetUserByEmail retrieves a user by normalized email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	// SaveUser persists the user's mutable engine-owned fields
	// (last_sign_in_at, updated_at).
	SaveUser(ctx context.Context, user *User) error

	// CreateSession stores a new session.
	CreateSession(ctx context.Context, session *Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)

	// SaveSession persists session mutations (counter, timestamps, not_after).
	SaveSession(ctx context.Context, session *Session) error

	// CreateRefreshToken stores a new refresh-token row.
	CreateRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshTokenByHash retrieves a session's token row by stored hash.
	// Returns ErrNotFound when no row matches.
	GetRefreshTokenByHash(ctx context.Context, sessionID uuid.UUID, tokenHash string) (*RefreshToken, error)

	// SaveRefreshToken persists token mutations (revoked, updated_at).
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// RevokeSessionRefreshTokens marks every token of the session revoked.
	RevokeSessionRefreshTokens(ctx context.Context, sessionID uuid.UUID, now time.Time) error

	// WithinTransaction runs fn inside one transaction. fn's Store argument
	// is transaction-scoped; returning an error rolls the transaction back.
	WithinTransaction(ctx context.Context, fn func(tx Store) error) error

	// WithSessionLock runs fn inside one transaction serialized by an
	// advisory lock on the session id. The lock is acquired before fn runs
	// and released on every exit path.
	WithSessionLock(ctx context.Context, sessionID uuid.UUID, fn func(tx Store) error) error
}

// SessionIPWriter is an optional store capability for persisting a validated
// client IP with store-native typing (e.g. Postgres inet). The engine probes
// for it at runtime and functions without it; failures are logged, never
// fatal.
type SessionIPWriter interface {
	WriteSessionIP(ctx context.Context, sessionID uuid.UUID, ip string) error
}
