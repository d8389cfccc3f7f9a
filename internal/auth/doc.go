// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package auth implements the credential issuance and rotation engine.
//
// # Domain Types
//
// User, Session, and RefreshToken mirror the backing store rows. Sessions own
// a per-session HMAC secret and a monotonic refresh counter; every refresh
// token is cryptographically bound to its session through that secret.
//
// # Services
//
// Service orchestrates the grant flows:
//   - PasswordGrant - rate-limited login, creates a session and token #1
//   - RefreshGrant - exactly-once token rotation with replay detection
//   - Logout - best-effort, idempotent session retirement
//
// Storage is abstracted behind the Store interface; the refresh grant runs
// inside a store transaction serialized by an advisory lock on the session id.
package auth
