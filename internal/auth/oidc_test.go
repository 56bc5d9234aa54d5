package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firebaseClaims struct {
	jwt.Claims
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

func signRS256(t *testing.T, key *rsa.PrivateKey, claims firebaseClaims) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, nil)
	require.NoError(t, err)
	token, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	require.NoError(t, err)
	return token
}

func TestOIDCVerifier_FirebaseClaims(t *testing.T) {
	t.Parallel()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	issuer := FirebaseIssuer("demo-project")

	verifier := NewOIDCVerifierWithKeySet(issuer, "demo-project",
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}},
		&oidc.Config{Now: func() time.Time { return now }})

	claims := firebaseClaims{
		Claims: jwt.Claims{
			Issuer:   issuer,
			Subject:  "firebase-uid",
			Audience: jwt.Audience{"demo-project"},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(time.Hour)),
		},
		UserID: "firebase-uid",
		Email:  "ada@example.com",
		Name:   "Ada",
	}
	id, err := verifier.Verify(context.Background(), signRS256(t, key, claims))
	require.NoError(t, err)
	assert.Equal(t, Identity{UID: "firebase-uid", Email: "ada@example.com", DisplayName: "Ada"}, *id)

	claims.Audience = jwt.Audience{"other-project"}
	_, err = verifier.Verify(context.Background(), signRS256(t, key, claims))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	claims.Audience = jwt.Audience{"demo-project"}
	claims.Expiry = jwt.NewNumericDate(now.Add(-time.Minute))
	_, err = verifier.Verify(context.Background(), signRS256(t, key, claims))
	assert.Error(t, err)
}
