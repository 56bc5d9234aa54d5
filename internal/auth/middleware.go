package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kuitang/sticky-canvas/internal/obs"
)

// Messages of the 401 and 403 responses.
const (
	MsgNoToken      = "Unauthorized: No token provided."
	MsgInvalidToken = "Unauthorized: Invalid token."
)

// RequireIdentity returns middleware that verifies the bearer token and
// stores the caller's Identity in the request context. A missing token is
// answered with 401, an invalid one with 403. profiles may be nil.
func RequireIdentity(verifier Verifier, profiles *ProfileService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := obs.From(r.Context()).With("pkg", "auth")

			token, err := ExtractBearerToken(r)
			if err != nil {
				if errors.Is(err, ErrNoToken) {
					writeAuthError(w, http.StatusUnauthorized, MsgNoToken)
					return
				}
				logger.Info("bearer token rejected", "error", err)
				writeAuthError(w, http.StatusForbidden, MsgInvalidToken)
				return
			}

			id, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Info("bearer token rejected", "error", err)
				writeAuthError(w, http.StatusForbidden, MsgInvalidToken)
				return
			}

			resolved := *id
			if profiles != nil {
				if resolved, err = profiles.Resolve(r.Context(), *id); err != nil {
					// The token is valid; serve with the token's own name.
					logger.Warn("profile lookup failed", "error", err)
					resolved = *id
				}
			}

			ctx := WithIdentity(r.Context(), resolved)
			ctx = obs.WithUID(ctx, resolved.UID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractBearerToken extracts the Bearer token from the Authorization header.
// EventSource clients cannot set headers, so an access_token query
// parameter is accepted on GET requests.
func ExtractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if r.Method == http.MethodGet {
			if token := r.URL.Query().Get("access_token"); token != "" {
				return token, nil
			}
		}
		return "", ErrNoToken
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) < len(bearerPrefix) || !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return "", fmt.Errorf("%w: expected Bearer scheme", ErrMalformedToken)
	}

	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_request"`)
	} else {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
