// Package auth verifies bearer tokens and carries the caller's identity
// through request contexts.
package auth

import (
	"context"
	"errors"
	"strings"
)

// Token verification errors.
var (
	ErrNoToken          = errors.New("auth: no bearer token provided")
	ErrMalformedToken   = errors.New("auth: malformed token")
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	ErrTokenExpired     = errors.New("auth: token expired")
	ErrTokenNotYetValid = errors.New("auth: token not yet valid")
	ErrInvalidIssuer    = errors.New("auth: invalid token issuer")
	ErrInvalidAudience  = errors.New("auth: invalid token audience")
	ErrMissingSubject   = errors.New("auth: token has no subject")
)

// Identity is the verified caller.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Greeting is how the user is addressed: display name, else email.
func (id Identity) Greeting() string {
	if name := strings.TrimSpace(id.DisplayName); name != "" {
		return name
	}
	return id.Email
}

// Verifier turns a raw bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by RequireIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UID != ""
}
