package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevTokenSource_MintsAndReuses(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t, newIssuerClock(time.Now()))
	var calls atomic.Int32
	mux := http.NewServeMux()
	issuer.RegisterRoutes(mux)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	src := NewDevTokenSource(context.Background(), srv.URL+"/", DevTokenRequest{UID: "dev-user", Email: "dev@example.com", Name: "Dev"})
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)

	id, err := issuer.Verifier().Verify(context.Background(), tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "dev-user", id.UID)
	assert.Equal(t, "Dev", id.DisplayName)

	again, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, tok.AccessToken, again.AccessToken)
	assert.Equal(t, int32(1), calls.Load(), "a valid token is reused")
}

func TestDevTokenEndpoint_RejectsBadRequests(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t, newIssuerClock(time.Now()))
	mux := http.NewServeMux()
	issuer.RegisterRoutes(mux)

	for _, body := range []string{"{", `{"uid":""}`, `{"uid":"a/b"}`} {
		req := httptest.NewRequest(http.MethodPost, DevTokenPath, strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	src := NewDevTokenSource(context.Background(), "http://127.0.0.1:1", DevTokenRequest{UID: "x"})
	_, err := src.Token()
	assert.Error(t, err)
}

func TestStaticTokenSource(t *testing.T) {
	t.Parallel()
	tok, err := StaticTokenSource("abc").Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
}
