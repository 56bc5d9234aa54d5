package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// FirebaseIssuer returns the OIDC issuer of a Firebase project.
func FirebaseIssuer(projectID string) string {
	return "https://securetoken.google.com/" + projectID
}

// OIDCVerifier verifies ID tokens from an external OpenID Connect
// provider such as Firebase Authentication.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers issuer's keys and verifies tokens for audience.
func NewOIDCVerifier(ctx context.Context, issuer, audience string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: audience})}, nil
}

// NewOIDCVerifierWithKeySet verifies tokens against a fixed key set.
func NewOIDCVerifierWithKeySet(issuer, audience string, keys oidc.KeySet, cfg *oidc.Config) *OIDCVerifier {
	if cfg == nil {
		cfg = &oidc.Config{}
	}
	cfg.ClientID = audience
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keys, cfg)}
}

// Verify checks the ID token and maps its claims to an Identity. Firebase
// also carries the subject as user_id.
func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var claims struct {
		Sub    string `json:"sub"`
		UserID string `json:"user_id"`
		Email  string `json:"email"`
		Name   string `json:"name"`
	}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	uid := claims.Sub
	if uid == "" {
		uid = claims.UserID
	}
	if uid == "" {
		return nil, ErrMissingSubject
	}
	return &Identity{UID: uid, Email: claims.Email, DisplayName: claims.Name}, nil
}
