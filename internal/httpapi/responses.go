// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/pkg/errutil"
)

// userResponse is the user projection returned by grant and me endpoints.
type userResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Aud       string     `json:"aud"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// grantResponse is the token endpoint success body.
type grantResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

// errorResponse follows the OAuth token-endpoint error shape.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func projectUser(user *auth.User) userResponse {
	return userResponse{
		ID:        user.ID.String(),
		Email:     user.Email,
		Role:      user.Role,
		Aud:       user.Aud,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func projectGrant(result *auth.GrantResult) grantResponse {
	return grantResponse{
		AccessToken:  result.AccessToken,
		TokenType:    result.TokenType,
		ExpiresIn:    result.ExpiresIn,
		RefreshToken: result.RefreshToken,
		User:         projectUser(result.User),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("writing response body", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, description string) {
	s.writeJSON(w, status, errorResponse{Error: code, ErrorDescription: description})
}

func (s *Server) writeUnauthorized(w http.ResponseWriter) {
	s.writeError(w, http.StatusUnauthorized, "invalid_grant", "Invalid credentials")
}

// writeGrantError maps service errors onto the HTTP taxonomy. Invalid
// credentials and invalid refresh tokens get the same generic 401 body.
func (s *Server) writeGrantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrBadRequest):
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Bad request")
	case errors.Is(err, auth.ErrRateLimited):
		s.writeError(w, http.StatusTooManyRequests, "over_request_rate_limit", "Too many requests")
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidRefreshToken):
		s.writeUnauthorized(w)
	default:
		errutil.LogError(s.logger, "request failed", err)
		s.writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
