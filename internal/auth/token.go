package auth

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of tokens minted by Issuer.
const DefaultTokenTTL = time.Hour

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// tokenClaims is the JWT body shared by Issuer and TokenVerifier.
type tokenClaims struct {
	jwt.Claims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// TokenVerifier verifies Ed25519-signed JWTs minted by Issuer.
type TokenVerifier struct {
	issuer    string
	audience  string
	publicKey ed25519.PublicKey
	clock     Clock
}

// NewTokenVerifier creates a new TokenVerifier.
//
// Parameters:
//   - issuer: Expected issuer (iss claim)
//   - audience: Expected audience (aud claim), normally the application id
//   - publicKey: Ed25519 public key for JWT signature verification
func NewTokenVerifier(issuer, audience string, publicKey ed25519.PublicKey) *TokenVerifier {
	return &TokenVerifier{
		issuer:    issuer,
		audience:  audience,
		publicKey: publicKey,
		clock:     systemClock{},
	}
}

// WithClock replaces the verifier's clock. Tests only.
func (v *TokenVerifier) WithClock(c Clock) *TokenVerifier {
	v.clock = c
	return v
}

// Verify checks signature, issuer, audience, exp and iat (one minute of
// clock skew) and returns the token's identity.
func (v *TokenVerifier) Verify(_ context.Context, raw string) (*Identity, error) {
	parsed, err := jwt.ParseSigned(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var claims tokenClaims
	if err := parsed.Claims(v.publicKey, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	now := v.clock.Now()
	if claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrInvalidIssuer, v.issuer, claims.Issuer)
	}
	if !claims.Audience.Contains(v.audience) {
		return nil, fmt.Errorf("%w: expected %q in audience", ErrInvalidAudience, v.audience)
	}
	if claims.Expiry == nil {
		return nil, fmt.Errorf("%w: missing exp claim", ErrMalformedToken)
	}
	if exp := claims.Expiry.Time(); now.After(exp) {
		return nil, fmt.Errorf("%w: expired at %v", ErrTokenExpired, exp)
	}
	if claims.IssuedAt != nil {
		if iat := claims.IssuedAt.Time(); iat.After(now.Add(time.Minute)) {
			return nil, fmt.Errorf("%w: issued at %v", ErrTokenNotYetValid, iat)
		}
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	return &Identity{UID: claims.Subject, Email: claims.Email, DisplayName: claims.Name}, nil
}

// Issuer mints development tokens. It stands in for an external identity
// provider when OIDC is disabled.
type Issuer struct {
	issuer     string
	audience   string
	signingKey ed25519.PrivateKey
	ttl        time.Duration
	clock      Clock
}

// NewIssuer creates an issuer signing with key.
func NewIssuer(issuer, audience string, key ed25519.PrivateKey) *Issuer {
	return &Issuer{
		issuer:     issuer,
		audience:   audience,
		signingKey: key,
		ttl:        DefaultTokenTTL,
		clock:      systemClock{},
	}
}

// WithClock replaces the issuer's clock. Tests only.
func (i *Issuer) WithClock(c Clock) *Issuer {
	i.clock = c
	return i
}

// Verifier returns a TokenVerifier accepting this issuer's tokens.
func (i *Issuer) Verifier() *TokenVerifier {
	v := NewTokenVerifier(i.issuer, i.audience, i.signingKey.Public().(ed25519.PublicKey))
	v.clock = i.clock
	return v
}

// Mint signs a token for id and returns it with its expiry.
func (i *Issuer) Mint(id Identity) (string, time.Time, error) {
	if id.UID == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	now := i.clock.Now()
	exp := now.Add(i.ttl)

	opts := (&jose.SignerOptions{}).WithType("JWT")
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: i.signingKey}, opts)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: failed to create signer: %w", err)
	}

	claims := tokenClaims{
		Claims: jwt.Claims{
			Issuer:   i.issuer,
			Subject:  id.UID,
			Audience: jwt.Audience{i.audience},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(exp),
			ID:       uuid.NewString(),
		},
		Email: id.Email,
		Name:  id.DisplayName,
	}
	token, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: failed to sign token: %w", err)
	}
	return token, exp, nil
}
