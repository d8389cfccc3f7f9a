// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/keygate/keygate/internal/auth"
)

// Request bodies are capped well above any legitimate grant payload.
const maxBodyBytes = 64 * 1024

// tokenRequest is the grant endpoint body.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

// logoutRequest is the logout endpoint body.
type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close() //nolint:errcheck // read-side close
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(dst)
}

// handleToken dispatches POST /auth/token on grant_type.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Bad request")
		return
	}

	switch req.GrantType {
	case "password":
		s.passwordGrant(w, r, req)
	case "refresh_token":
		s.refreshGrant(w, r, req)
	default:
		s.writeError(w, http.StatusBadRequest, "unsupported_grant_type", "Unsupported grant type")
	}
}

func (s *Server) passwordGrant(w http.ResponseWriter, r *http.Request, req tokenRequest) {
	result, err := s.svc.PasswordGrant(r.Context(), auth.PasswordGrantInput{
		Email:     req.Email,
		Password:  req.Password,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		s.recordGrant("password", "failure")
		s.writeGrantError(w, err)
		return
	}

	s.recordGrant("password", "success")
	s.writeJSON(w, http.StatusOK, projectGrant(result))
}

func (s *Server) refreshGrant(w http.ResponseWriter, r *http.Request, req tokenRequest) {
	result, err := s.svc.RefreshGrant(r.Context(), req.RefreshToken)
	if err != nil {
		s.recordGrant("refresh_token", "failure")
		s.writeGrantError(w, err)
		return
	}

	s.recordGrant("refresh_token", "success")
	s.writeJSON(w, http.StatusOK, projectGrant(result))
}

// handleLogout retires the presented refresh token's session. The response is
// 204 regardless of token validity; only infrastructure failures surface.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	// An unreadable body is treated like a missing token.
	_ = decodeBody(r, &req)

	if err := s.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeGrantError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the authenticated user's projection. requireBearer has
// already re-checked the user is still active.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		s.writeUnauthorized(w)
		return
	}
	s.writeJSON(w, http.StatusOK, projectUser(user))
}

func (s *Server) recordGrant(grantType, status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.GrantsTotal.WithLabelValues(grantType, status).Inc()
}
