package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/kuitang/sticky-canvas/internal/obs"
)

// DefaultRetryAfterSeconds is sent in Retry-After on a 429.
const DefaultRetryAfterSeconds = 1

// MsgTooManyRequests is the error body of a 429.
const MsgTooManyRequests = "Too Many Requests"

// RateLimitMiddleware returns 429 Too Many Requests once the caller's bucket
// is empty. keyOf extracts the caller key; requests with an empty key pass
// through untouched, so the middleware belongs after authentication.
func RateLimitMiddleware(limiter *RateLimiter, keyOf func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyOf(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			bucket := limiter.GetLimiter(key)
			if !bucket.AllowN(limiter.now(), 1) {
				obs.From(r.Context()).With("pkg", "ratelimit").Info("rate limited", "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": MsgTooManyRequests})
				return
			}

			remaining := int(bucket.TokensAt(limiter.now()))
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			next.ServeHTTP(w, r)
		})
	}
}
