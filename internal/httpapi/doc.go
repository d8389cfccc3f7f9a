// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package httpapi exposes the grant, logout, and who-am-i endpoints over HTTP.
//
// The surface is deliberately small: POST /auth/token for password and
// refresh_token grants, POST /auth/logout (always 204), and GET /auth/me
// behind bearer authentication. Each route can be disabled independently.
// Error bodies follow the OAuth token-endpoint shape and never distinguish
// why a credential was rejected.
package httpapi
