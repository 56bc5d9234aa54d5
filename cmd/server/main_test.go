package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/sticky-canvas/internal/auth"
	"github.com/kuitang/sticky-canvas/internal/config"
	"github.com/kuitang/sticky-canvas/internal/db"
)

func testEnv(t *testing.T) {
	t.Helper()
	db.ResetForTesting()
	t.Cleanup(db.ResetForTesting)
	t.Setenv("MASTER_KEY", strings.Repeat("ab", 32))
	t.Setenv("TOKEN_SIGNING_KEY", strings.Repeat("cd", 32))
	t.Setenv("DATABASE_PATH", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("APP_ID", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("RATE_LIMIT_RPS", "")
	t.Setenv("RATE_LIMIT_BURST", "")
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestRun_RejectsInvalidConfig(t *testing.T) {
	testEnv(t)
	t.Setenv("MASTER_KEY", "")

	err := run(context.Background(), []string{"--test"}, &bytes.Buffer{})
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "MASTER_KEY")
}

func TestRun_RejectsUnknownFlag(t *testing.T) {
	testEnv(t)
	assert.Error(t, run(context.Background(), []string{"--nope"}, &bytes.Buffer{}))
}

func TestRun_TestModeServesAndShutsDown(t *testing.T) {
	testEnv(t)
	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"--test", "--addr", addr}, &out)
	}()

	base := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	ts := auth.NewDevTokenSource(ctx, base, auth.DevTokenRequest{UID: "alice", Name: "Alice"})
	tok, err := ts.Token()
	require.NoError(t, err)

	body := strings.NewReader(`{"text":"hello","x":10,"y":20}`)
	req, err := http.NewRequest(http.MethodPut, base+"/api/apps/collaborative-canvas/textboxes/textbox-1", body)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var note struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&note))
	assert.Equal(t, "hello", note.Text)

	req, err = http.NewRequest(http.MethodPost, base+"/api/apps/collaborative-canvas/exports", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	exp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	exp.Body.Close()
	assert.Equal(t, http.StatusCreated, exp.StatusCode, "in-memory object storage backs exports in test mode")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Contains(t, out.String(), "Dev tokens (--no-oidc)")
}

func TestDevIssuer_StableWithSigningKey(t *testing.T) {
	cfg := &config.Config{AppID: "collaborative-canvas", TokenSigningKey: strings.Repeat("cd", 32)}
	a, err := devIssuer(cfg)
	require.NoError(t, err)
	b, err := devIssuer(cfg)
	require.NoError(t, err)

	token, _, err := a.Mint(auth.Identity{UID: "alice"})
	require.NoError(t, err)
	id, err := b.Verifier().Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UID)
}
