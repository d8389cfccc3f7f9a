// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package postgres implements auth.Store on PostgreSQL via pgx.
package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

// DB is the subset of pgxpool.Pool the store needs. pgx.Tx satisfies it too,
// which lets transaction-scoped stores reuse the same query code, and
// pgxmock implements it for tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements auth.Store using PostgreSQL.
type Store struct {
	db DB
}

// NewStore creates a Store on a pool (or any DB-compatible handle).
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// WithinTransaction runs fn with a transaction-scoped Store. The transaction
// is rolled back when fn returns an error and committed otherwise.
func (s *Store) WithinTransaction(ctx context.Context, fn func(tx auth.Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return oops.Code("STORE_TX_BEGIN_FAILED").Wrap(err)
	}
	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // no-op after commit
	}()

	if err := fn(&Store{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("STORE_TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

// WithSessionLock runs fn inside a transaction serialized by a Postgres
// advisory lock derived from the session id. pg_advisory_xact_lock holds the
// lock for the transaction's duration and releases it on every exit path,
// commit and rollback alike.
func (s *Store) WithSessionLock(ctx context.Context, sessionID uuid.UUID, fn func(tx auth.Store) error) error {
	return s.WithinTransaction(ctx, func(txStore auth.Store) error {
		ts, ok := txStore.(*Store)
		if !ok {
			return oops.Code("STORE_LOCK_FAILED").Errorf("unexpected transaction store type")
		}
		_, err := ts.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sessionID.String())
		if err != nil {
			return oops.Code("STORE_LOCK_FAILED").
				With("session_id", sessionID.String()).
				Wrap(err)
		}
		return fn(txStore)
	})
}

// WriteSessionIP persists a validated client address with inet typing. This
// is the optional auth.SessionIPWriter capability; failures are the caller's
// to log, not fatal.
func (s *Store) WriteSessionIP(ctx context.Context, sessionID uuid.UUID, ip string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE sessions SET ip = $2::inet WHERE id = $1`,
		sessionID.String(), ip)
	if err != nil {
		return oops.Code("SESSION_IP_WRITE_FAILED").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ auth.Store           = (*Store)(nil)
	_ auth.SessionIPWriter = (*Store)(nil)
)
