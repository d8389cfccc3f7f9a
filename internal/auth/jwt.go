// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// AccessClaims is the bearer-token claim set for a validated user.
type AccessClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner signs and verifies short-lived bearer tokens. Verify enforces
// expiry; issuer and audience expectations are checked by the verifying
// middleware against configured values, not by the signer.
type TokenSigner interface {
	Sign(claims AccessClaims) (string, error)
	Verify(token string) (*AccessClaims, error)
}

// HS256Signer implements TokenSigner with HMAC-SHA256.
type HS256Signer struct {
	secret []byte
}

// NewHS256Signer creates a signer from a shared secret.
func NewHS256Signer(secret string) (*HS256Signer, error) {
	if secret == "" {
		return nil, oops.Code("JWT_SECRET_EMPTY").Errorf("jwt secret cannot be empty")
	}
	return &HS256Signer{secret: []byte(secret)}, nil
}

// Sign produces a signed compact JWT for the claims.
func (s *HS256Signer) Sign(claims AccessClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", oops.Code("JWT_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Verify parses and validates a compact JWT, rejecting expired tokens and
// any signing method other than HS256.
func (s *HS256Signer) Verify(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, oops.Code("JWT_VERIFY_FAILED").Wrap(err)
	}
	return claims, nil
}

// NewAccessClaims builds the claim set for a user: subject = user id,
// expiration = now + ttl, audience = the configured audience or the user's
// stored one.
func NewAccessClaims(user *User, audience, issuer string, ttl time.Duration, now time.Time) AccessClaims {
	aud := audience
	if aud == "" {
		aud = user.Aud
	}
	return AccessClaims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{aud},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
}

// Compile-time interface check.
var _ TokenSigner = (*HS256Signer)(nil)
