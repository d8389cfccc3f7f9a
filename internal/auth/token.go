// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// refreshTokenVersion is the literal version tag of the opaque wire format
// v1.<sessionID>.<counter>.<nonce>.
const refreshTokenVersion = "v1"

// RefreshTokenParts is the decoded form of a syntactically valid raw token.
type RefreshTokenParts struct {
	SessionID uuid.UUID
	Counter   int64
}

// RefreshTokenIssue carries a freshly minted token: the raw form returned to
// the caller exactly once, its stored hash, and the session counter it claims.
type RefreshTokenIssue struct {
	RawToken  string
	TokenHash string
	Counter   int64
}

// ParseRefreshToken decodes the opaque wire format. Any deviation fails:
// exactly four dot-separated fields, literal v1 tag, a parseable session
// UUID, a positive counter, and a non-empty nonce.
func ParseRefreshToken(raw string) (*RefreshTokenParts, error) {
	fields := strings.Split(raw, ".")
	if len(fields) != 4 {
		return nil, oops.Code("TOKEN_MALFORMED").Errorf("refresh token must have 4 fields, got %d", len(fields))
	}
	if fields[0] != refreshTokenVersion {
		return nil, oops.Code("TOKEN_MALFORMED").Errorf("unsupported refresh token version")
	}
	sessionID, err := uuid.Parse(fields[1])
	if err != nil {
		return nil, oops.Code("TOKEN_MALFORMED").With("operation", "parse session id").Wrap(err)
	}
	counter, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, oops.Code("TOKEN_MALFORMED").With("operation", "parse counter").Wrap(err)
	}
	if counter <= 0 {
		return nil, oops.Code("TOKEN_MALFORMED").Errorf("refresh token counter must be positive")
	}
	if fields[3] == "" {
		return nil, oops.Code("TOKEN_MALFORMED").Errorf("refresh token nonce cannot be empty")
	}
	return &RefreshTokenParts{SessionID: sessionID, Counter: counter}, nil
}

// IssueRefreshToken mints the next token in a session's chain. The raw token
// embeds the incremented counter and a fresh nonce; the hash binds it to the
// session through its HMAC key.
func IssueRefreshToken(sessionID uuid.UUID, hmacKey string, previousCounter int64) RefreshTokenIssue {
	counter := previousCounter + 1
	raw := fmt.Sprintf("%s.%s.%d.%s", refreshTokenVersion, sessionID.String(), counter, NewSessionSecret())
	return RefreshTokenIssue{
		RawToken:  raw,
		TokenHash: HashRefreshToken(raw, hmacKey),
		Counter:   counter,
	}
}

// HashRefreshToken computes the stored form of a raw token:
// hex(HMAC-SHA256(key = session secret, message = raw token)). A token cannot
// be validated without the issuing session's secret, which closes the door on
// cross-session forgery even if an attacker learns a session id.
func HashRefreshToken(raw, hmacKey string) string {
	mac := hmac.New(sha256.New, []byte(hmacKey))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewSessionSecret generates a per-session HMAC key: two concatenated random
// 128-bit identifiers, dashes stripped (256 bits of entropy). Also used as
// the nonce source for issued tokens.
func NewSessionSecret() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
}
