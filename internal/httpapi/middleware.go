// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package httpapi

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/logging"
)

// RequestIDHeader carries the per-request ID on responses and may supply one
// on requests from an upstream proxy.
const RequestIDHeader = "X-Request-ID"

// requestIDPattern bounds inbound request IDs so a proxy-supplied value
// cannot smuggle arbitrary bytes into logs or response headers.
var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

type userContextKey struct{}

// userFromContext returns the authenticated user set by requireBearer.
func userFromContext(ctx context.Context) (*auth.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*auth.User)
	return user, ok
}

// withRequestID assigns each request an ID, honoring a well-formed inbound
// header, and threads it through the logging context and response.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !requestIDPattern.MatchString(id) {
			id = ulid.Make().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// requireBearer authenticates the request with a bearer access token. The
// token must verify against the signer, match the expected issuer and
// audience, and resolve to a user that is still active.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			s.writeUnauthorized(w)
			return
		}

		claims, err := s.verifier.Verify(raw)
		if err != nil {
			s.writeUnauthorized(w)
			return
		}
		if s.opts.Issuer != "" && claims.Issuer != s.opts.Issuer {
			s.writeUnauthorized(w)
			return
		}
		if s.opts.Audience != "" && !claimsHaveAudience(claims, s.opts.Audience) {
			s.writeUnauthorized(w)
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			s.writeUnauthorized(w)
			return
		}

		user, err := s.svc.CurrentUser(r.Context(), userID)
		if err != nil {
			s.writeGrantError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func claimsHaveAudience(claims *auth.AccessClaims, want string) bool {
	for _, aud := range claims.Audience {
		if aud == want {
			return true
		}
	}
	return false
}

// clientIP extracts the caller's IP for rate-limit keying and best-effort
// session persistence. The leftmost X-Forwarded-For entry wins when present.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if net.ParseIP(realIP) != nil {
			return realIP
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
