// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import "errors"

// Sentinel errors for the credential engine. Callers classify failures with
// errors.Is; the oops wrappers added at each site carry the server-side detail.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBadRequest is returned for missing or malformed input.
	ErrBadRequest = errors.New("bad request")

	// ErrInvalidCredentials is returned for any password-grant failure that
	// must not reveal its cause: unknown email, bad password, ineligible user.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefreshToken is returned for any refresh-grant failure.
	// Malformed, unknown, stale, replayed, expired, and idle-timed-out tokens
	// are indistinguishable to the caller.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrRateLimited is returned when the password-grant rate limiter blocks
	// a request before it touches the store.
	ErrRateLimited = errors.New("too many login attempts")
)
