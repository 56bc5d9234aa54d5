package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/kuitang/sticky-canvas/internal/urlutil"
)

// StaticTokenSource serves a fixed token, e.g. an ID token pasted from the
// identity provider.
func StaticTokenSource(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// NewDevTokenSource fetches tokens from a server's development issuer and
// refreshes them shortly before they expire.
func NewDevTokenSource(ctx context.Context, baseURL string, req DevTokenRequest) oauth2.TokenSource {
	src := &devTokenSource{
		ctx:    ctx,
		url:    urlutil.Join(baseURL, DevTokenPath),
		req:    req,
		client: oauth2.NewClient(ctx, nil),
	}
	return oauth2.ReuseTokenSource(nil, src)
}

type devTokenSource struct {
	ctx    context.Context
	url    string
	req    DevTokenRequest
	client *http.Client
}

func (s *devTokenSource) Token() (*oauth2.Token, error) {
	body, err := json.Marshal(s.req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(s.ctx, 15*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("auth: dev token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("auth: dev token request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var tr DevTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("auth: dev token response: %w", err)
	}
	return &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		Expiry:      tr.Expiry,
	}, nil
}
