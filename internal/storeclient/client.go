// Package storeclient is a notes.Store backed by the canvas HTTP API: writes
// are PUT/DELETE requests and snapshots arrive over the SSE change stream.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kuitang/sticky-canvas/internal/errs"
	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/obs"
	"github.com/kuitang/sticky-canvas/internal/urlutil"
	"golang.org/x/oauth2"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultMinBackoff     = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	maxErrorBody          = 4096
)

// Client talks to one application's collection of the token's user.
type Client struct {
	baseURL    string
	appID      string
	http       *http.Client
	session    string
	timeout    time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration
	log        *slog.Logger
}

var _ notes.Store = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBackoff sets the reconnect backoff bounds of the change stream.
func WithBackoff(lo, hi time.Duration) Option {
	return func(c *Client) {
		if lo > 0 {
			c.minBackoff = lo
		}
		if hi >= c.minBackoff {
			c.maxBackoff = hi
		}
	}
}

// WithRequestTimeout bounds each non-streaming request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a client. Every request carries a bearer token from ts.
func New(ctx context.Context, baseURL, appID string, ts oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    urlutil.Normalize(baseURL),
		appID:      appID,
		http:       oauth2.NewClient(ctx, ts),
		session:    obs.NewSessionID(),
		timeout:    defaultRequestTimeout,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		log:        obs.Pkg("storeclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID identifies this client in server logs.
func (c *Client) SessionID() string {
	return c.session
}

func (c *Client) collectionURL(segments ...string) string {
	return urlutil.Segments(c.baseURL, append([]string{"api", "apps", c.appID}, segments...)...)
}

func (c *Client) textboxURL(id string) string {
	return c.collectionURL("textboxes", id)
}

// Upsert sends a partial merge of f into note id.
func (c *Client) Upsert(ctx context.Context, id string, f notes.Fields) error {
	return c.doJSON(ctx, http.MethodPut, c.textboxURL(id), f, nil)
}

// Remove deletes note id.
func (c *Client) Remove(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, c.textboxURL(id), nil, nil)
}

// List fetches the collection once.
func (c *Client) List(ctx context.Context) ([]notes.Note, error) {
	var out struct {
		Notes []notes.Note `json:"notes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.collectionURL("textboxes"), nil, &out); err != nil {
		return nil, err
	}
	return out.Notes, nil
}

// ExportResult locates a snapshot export in object storage.
type ExportResult struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Export asks the server to write the collection to object storage.
func (c *Client) Export(ctx context.Context) (ExportResult, error) {
	var out ExportResult
	err := c.doJSON(ctx, http.MethodPost, c.collectionURL("exports"), nil, &out)
	return out, err
}

// Profile is the caller as the server sees it.
type Profile struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Label is the name shown for the user.
func (p Profile) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Email != "" {
		return p.Email
	}
	return p.UID
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (Profile, error) {
	var out Profile
	err := c.doJSON(ctx, http.MethodGet, urlutil.Join(c.baseURL, "/api/me"), nil, &out)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, method, target string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("storeclient: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("storeclient: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(obs.ClientSessionHeader, c.session)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "canvas server unreachable", err)
	}
	defer resp.Body.Close()

	c.log.Debug("request",
		"method", method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"dur_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	if resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Wrap(errs.Internal, "invalid server response", err)
	}
	return nil
}

// responseError turns a non-2xx response into a coded error carrying the
// server's message.
func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(data))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return errs.Wrap(errs.FromHTTPStatus(resp.StatusCode), msg, fmt.Errorf("status %d", resp.StatusCode))
}
