package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kuitang/sticky-canvas/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProfiles(t *testing.T) *ProfileService {
	t.Helper()
	accounts, err := testdb.NewAccountsDBInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { accounts.Close() })
	return NewProfileService(accounts)
}

func whoami(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "no identity", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(id)
}

func TestRequireIdentity(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t, newIssuerClock(time.Now()))
	profiles := newProfiles(t)
	handler := RequireIdentity(issuer.Verifier(), profiles)(http.HandlerFunc(whoami))

	token, _, err := issuer.Mint(Identity{UID: "u1", Email: "u1@example.com", DisplayName: "From Token"})
	require.NoError(t, err)

	cases := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantError  string
	}{
		{"missing", "", "", http.StatusUnauthorized, MsgNoToken},
		{"empty bearer", "Bearer ", "", http.StatusUnauthorized, MsgNoToken},
		{"wrong scheme", "Basic dTpw", "", http.StatusForbidden, MsgInvalidToken},
		{"invalid", "Bearer abc.def.ghi", "", http.StatusForbidden, MsgInvalidToken},
		{"valid", "Bearer " + token, "", http.StatusOK, ""},
		{"lowercase scheme", "bearer " + token, "", http.StatusOK, ""},
		{"query token", "", "?access_token=" + token, http.StatusOK, ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/x"+tc.query, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, tc.wantStatus, rec.Code, tc.name)
		if tc.wantError != "" {
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), tc.name)
			assert.Equal(t, tc.wantError, body["error"], tc.name)
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"), tc.name)
		}
	}
}

func TestRequireIdentity_ProfileOverridesName(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t, newIssuerClock(time.Now()))
	profiles := newProfiles(t)
	handler := RequireIdentity(issuer.Verifier(), profiles)(http.HandlerFunc(whoami))
	token, _, err := issuer.Mint(Identity{UID: "u1", DisplayName: "From Token"})
	require.NoError(t, err)

	call := func() Identity {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var id Identity
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &id))
		return id
	}

	assert.Equal(t, "From Token", call().DisplayName)
	_, err = profiles.UpdateDisplayName(context.Background(), "u1", "  Renamed  ")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", call().DisplayName)
}

func TestProfileService_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	profiles := newProfiles(t)

	for _, bad := range []string{"", "   ", string(make([]rune, MaxDisplayNameRunes+1))} {
		_, err := profiles.UpdateDisplayName(ctx, "u", bad)
		assert.Error(t, err)
	}
	name, err := profiles.UpdateDisplayName(ctx, "u", "Ünïcødé")
	require.NoError(t, err)
	assert.Equal(t, "Ünïcødé", name)

	got, err := profiles.DisplayName(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "Ünïcødé", got)

	got, err = profiles.DisplayName(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIdentity_Greeting(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Ada", Identity{DisplayName: "Ada", Email: "a@x"}.Greeting())
	assert.Equal(t, "a@x", Identity{DisplayName: " ", Email: "a@x"}.Greeting())
}
