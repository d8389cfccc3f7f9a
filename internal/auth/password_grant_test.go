// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/auth/mocks"
	"github.com/keygate/keygate/pkg/errutil"
)

func grantInput() auth.PasswordGrantInput {
	return auth.PasswordGrantInput{
		Email:     "user@example.com",
		Password:  "password123",
		IP:        "192.168.1.1",
		UserAgent: "Mozilla/5.0",
	}
}

func TestPasswordGrant_Success(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockStore(t)
	hasher := mocks.NewMockPasswordHasher(t)
	signer := mocks.NewMockTokenSigner(t)
	svc := newTestService(t, store, hasher, signer, defaultOptions())

	user := testUser()
	user.EncryptedPassword = "$2a$10$stored-hash"

	var created *auth.Session
	store.On("GetUserByEmail", ctx, "user@example.com").Return(user, nil)
	hasher.On("Verify", "password123", user.EncryptedPassword).Return(true, nil)
	expectTransaction(store)
	store.On("SaveUser", ctx, user).Return(nil)
	store.On("CreateSession", ctx, mock.MatchedBy(func(s *auth.Session) bool {
		created = s
		return s.UserID == user.ID && s.RefreshTokenCounter == 0 && s.RefreshTokenHMACKey != ""
	})).Return(nil)
	store.On("CreateRefreshToken", ctx, mock.MatchedBy(func(tok *auth.RefreshToken) bool {
		return tok.UserID == user.ID && tok.Parent == "" && tok.TokenHash != ""
	})).Return(nil)
	store.On("SaveSession", ctx, mock.AnythingOfType("*auth.Session")).Return(nil)
	signer.On("Sign", mock.AnythingOfType("auth.AccessClaims")).Return("signed-jwt", nil)

	result, err := svc.PasswordGrant(ctx, grantInput())
	require.NoError(t, err)

	assert.Equal(t, "signed-jwt", result.AccessToken)
	assert.Equal(t, "bearer", result.TokenType)
	assert.Equal(t, 3600, result.ExpiresIn)
	assert.Equal(t, user, result.User)
	assert.NotNil(t, user.LastSignInAt, "sign-in is stamped")

	require.NotNil(t, created)
	assert.Equal(t, int64(1), created.RefreshTokenCounter, "counter advances to 1 with token #1")
	assert.Equal(t, "Mozilla/5.0", created.UserAgent)
	require.NotNil(t, created.NotAfter)

	parts, err := auth.ParseRefreshToken(result.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, parts.SessionID)
	assert.Equal(t, int64(1), parts.Counter)
}

func TestPasswordGrant_MissingInput(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		input auth.PasswordGrantInput
	}{
		{"missing email", auth.PasswordGrantInput{Password: "password123"}},
		{"whitespace email", auth.PasswordGrantInput{Email: "   ", Password: "password123"}},
		{"missing password", auth.PasswordGrantInput{Email: "user@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewMockStore(t)
			svc := newTestService(t, store, mocks.NewMockPasswordHasher(t), mocks.NewMockTokenSigner(t), defaultOptions())

			result, err := svc.PasswordGrant(ctx, tt.input)
			assert.Nil(t, result)
			errutil.AssertSentinel(t, err, auth.ErrBadRequest)
		})
	}
}

func TestPasswordGrant_UnknownEmail(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockStore(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newTestService(t, store, hasher, mocks.NewMockTokenSigner(t), defaultOptions())

	store.On("GetUserByEmail", ctx, "unknown@example.com").Return(nil, auth.ErrNotFound)
	// Verify still runs against a dummy hash so response time matches the
	// real-user path.
	hasher.On("Verify", "password123", mock.AnythingOfType("string")).Return(false, nil)

	input := grantInput()
	input.Email = "unknown@example.com"

	result, err := svc.PasswordGrant(ctx, input)
	assert.Nil(t, result)
	errutil.AssertSentinel(t, err, auth.ErrInvalidCredentials)
}

func TestPasswordGrant_WrongPassword(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockStore(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newTestService(t, store, hasher, mocks.NewMockTokenSigner(t), defaultOptions())

	user := testUser()
	user.EncryptedPassword = "$2a$10$stored-hash"
	store.On("GetUserByEmail", ctx, "user@example.com").Return(user, nil)
	hasher.On("Verify", "password123", user.EncryptedPassword).Return(false, nil)

	result, err := svc.PasswordGrant(ctx, grantInput())
	assert.Nil(t, result)
	errutil.AssertSentinel(t, err, auth.ErrInvalidCredentials)
}

func TestPasswordGrant_VerifyErrorIsMismatch(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockStore(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newTestService(t, store, hasher, mocks.NewMockTokenSigner(t), defaultOptions())

	user := testUser()
	user.EncryptedPassword = "corrupted"
	store.On("GetUserByEmail", ctx, "user@example.com").Return(user, nil)
	hasher.On("Verify", "password123", "corrupted").Return(false, errors.New("invalid hash"))

	result, err := svc.PasswordGrant(ctx, grantInput())
	assert.Nil(t, result)
	errutil.AssertSentinel(t, err, auth.ErrInvalidCredentials)
}

func TestPasswordGrant_EmptyStoredHash(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockStore(t)
	svc := newTestService(t, store, mocks.NewMockPasswordHasher(t), mocks.NewMockTokenSigner(t), defaultOptions())

	user := testUser()
	user.EncryptedPassword = ""
	store.On("GetUserByEmail", ctx, "user@example.com").Return(user, nil)

	result, err := svc.PasswordGrant(ctx, grantInput())
	assert.Nil(t, result)
	errutil.AssertSentinel(t, err, auth.ErrInvalidCredentials)
}

func TestPasswordGrant_IneligibleUser(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		mutate func(*auth.User)
		opts   auth.Options
	}{
		{"soft-deleted", func(u *auth.User) { u.DeletedAt = &past }, defaultOptions()},
		{"currently banned", func(u *auth.User) { u.BannedUntil = &future }, defaultOptions()},
		{"unconfirmed under policy", func(u *auth.User) { u.ConfirmedAt = nil; u.EmailConfirmedAt = nil }, func() auth.Options {
			o := defaultOptions()
			o.ConfirmationPolicy = auth.RequireConfirmedEmail
			return o
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewMockStore(t)
			hasher := mocks.NewMockPasswordHasher(t)
			svc := newTestService(t, store, hasher, mocks.NewMockTokenSigner(t), tt.opts)

			user := testUser()
			user.EncryptedPassword = "$2a$10$stored-hash"
			tt.mutate(user)

			store.On("GetUserByEmail", ctx, "user@example.com").Return(user, nil)
			hasher.On("Verify", "password123", user.EncryptedPassword).Return(true, nil)

			result, err := svc.PasswordGrant(ctx, grantInput())
			assert.Nil(t, result)
			errutil.AssertSentinel(t, err, auth.ErrInvalidCredentials)
		})
	}
}

func TestPasswordGrant_RateLimited(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockStore(t)
	hasher := mocks.NewMockPasswordHasher(t)
	limiter := auth.NewPasswordGrantLimiter(auth.RateLimitOptions{
		MaxAttempts:   1,
		WindowSeconds: 60,
		BlockSeconds:  300,
	})
	svc, err := auth.NewService(store, hasher, mocks.NewMockTokenSigner(t), limiter, defaultOptions(), discardLogger())
	require.NoError(t, err)

	store.On("GetUserByEmail", ctx, "user@example.com").Return(nil, auth.ErrNotFound).Once()
	hasher.On("Verify", "password123", mock.AnythingOfType("string")).Return(false, nil).Once()

	// First attempt fails and burns the single allowed attempt.
	_, err = svc.PasswordGrant(ctx, grantInput())
	errutil.AssertSentinel(t, err, auth.ErrInvalidCredentials)

	// Second attempt is blocked before the store is consulted.
	result, err := svc.PasswordGrant(ctx, grantInput())
	assert.Nil(t, result)
	errutil.AssertSentinel(t, err, auth.ErrRateLimited)
}

func TestPasswordGrant_SuccessClearsRateLimit(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockStore(t)
	hasher := mocks.NewMockPasswordHasher(t)
	signer := mocks.NewMockTokenSigner(t)
	limiter := auth.NewPasswordGrantLimiter(auth.RateLimitOptions{
		MaxAttempts:   2,
		WindowSeconds: 60,
		BlockSeconds:  300,
	})
	svc, err := auth.NewService(store, hasher, signer, limiter, defaultOptions(), discardLogger())
	require.NoError(t, err)

	user := testUser()
	user.EncryptedPassword = "$2a$10$stored-hash"

	store.On("GetUserByEmail", ctx, "user@example.com").Return(user, nil)
	hasher.On("Verify", "wrong", user.EncryptedPassword).Return(false, nil).Once()
	hasher.On("Verify", "password123", user.EncryptedPassword).Return(true, nil)
	expectTransaction(store)
	store.On("SaveUser", ctx, user).Return(nil)
	store.On("CreateSession", ctx, mock.AnythingOfType("*auth.Session")).Return(nil)
	store.On("CreateRefreshToken", ctx, mock.AnythingOfType("*auth.RefreshToken")).Return(nil)
	store.On("SaveSession", ctx, mock.AnythingOfType("*auth.Session")).Return(nil)
	signer.On("Sign", mock.AnythingOfType("auth.AccessClaims")).Return("signed-jwt", nil)

	bad := grantInput()
	bad.Password = "wrong"
	_, err = svc.PasswordGrant(ctx, bad)
	errutil.AssertSentinel(t, err, auth.ErrInvalidCredentials)

	_, err = svc.PasswordGrant(ctx, grantInput())
	require.NoError(t, err)

	keys := auth.PasswordGrantRateLimitKeys(grantInput().IP, grantInput().Email)
	assert.False(t, limiter.IsBlocked(keys, time.Now()))
}

func TestPasswordGrant_TransactionFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockStore(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newTestService(t, store, hasher, mocks.NewMockTokenSigner(t), defaultOptions())

	user := testUser()
	user.EncryptedPassword = "$2a$10$stored-hash"

	store.On("GetUserByEmail", ctx, "user@example.com").Return(user, nil)
	hasher.On("Verify", "password123", user.EncryptedPassword).Return(true, nil)
	expectTransaction(store)
	store.On("SaveUser", ctx, user).Return(errors.New("deadlock detected"))

	result, err := svc.PasswordGrant(ctx, grantInput())
	assert.Nil(t, result)
	require.Error(t, err)
	assert.False(t, errors.Is(err, auth.ErrInvalidCredentials), "infrastructure errors stay distinct from credential errors")
}
