package storeclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/sticky-canvas/internal/errs"
	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/obs"
)

// Subscribe opens the change stream. The first connection is made before
// Subscribe returns so an auth or request failure surfaces as its error; an
// unreachable server is not an error and is retried like a dropped stream.
// The stream reconnects with exponential backoff and every reconnection
// starts with a full snapshot. fn runs on the stream goroutine. The
// returned function stops the stream and waits for it, so it must not be
// called from inside fn.
func (c *Client) Subscribe(ctx context.Context, fn func(notes.Snapshot)) (func(), error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	body, err := c.openStream(streamCtx)
	if err != nil {
		if errs.CodeOf(err) != errs.Unavailable {
			cancel()
			return nil, err
		}
		c.log.Warn("change stream unavailable, retrying", "error", err)
		body = nil
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		c.runStream(streamCtx, body, fn)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-stopped
		})
	}, nil
}

func (c *Client) openStream(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.collectionURL("textboxes", "stream"), nil)
	if err != nil {
		return nil, fmt.Errorf("storeclient: build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(obs.ClientSessionHeader, c.session)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "canvas server unreachable", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, responseError(resp)
	}
	return resp.Body, nil
}

func (c *Client) runStream(ctx context.Context, body io.ReadCloser, fn func(notes.Snapshot)) {
	backoff := c.minBackoff
	for {
		if body != nil {
			retry, err := readEvents(ctx, body, fn)
			body.Close()
			if ctx.Err() != nil {
				return
			}
			if retry > 0 {
				backoff = max(c.minBackoff, min(retry, c.maxBackoff))
			}
			c.log.Warn("change stream interrupted", "error", err, "retry_in", backoff.String())
		}

		var err error
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			body, err = c.openStream(ctx)
			if err == nil {
				c.log.Info("change stream reconnected")
				backoff = c.minBackoff
				break
			}
			if ctx.Err() != nil {
				return
			}
			backoff = min(backoff*2, c.maxBackoff)
			c.log.Warn("change stream reconnect failed", "error", err, "retry_in", backoff.String())
		}
	}
}

// readEvents dispatches SSE data events until the body ends. It returns
// the last retry hint sent by the server.
func readEvents(ctx context.Context, body io.Reader, fn func(notes.Snapshot)) (time.Duration, error) {
	r := bufio.NewReader(body)
	var (
		data  strings.Builder
		retry time.Duration
	)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return retry, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var snap notes.Snapshot
			if err := json.Unmarshal([]byte(data.String()), &snap); err != nil {
				return retry, fmt.Errorf("decode snapshot: %w", err)
			}
			data.Reset()
			if ctx.Err() != nil {
				return retry, ctx.Err()
			}
			fn(notes.NewSnapshot(snap.Notes, snap.Changes...))
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "retry:"):
			if ms, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "retry:"))); err == nil && ms > 0 {
				retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}
