package api

import (
	"net/http"

	"github.com/kuitang/sticky-canvas/internal/auth"
	"github.com/kuitang/sticky-canvas/internal/obs"
	"github.com/kuitang/sticky-canvas/internal/ratelimit"
)

// RouterConfig assembles the server's HTTP surface.
type RouterConfig struct {
	Handler  *Handler
	Verifier auth.Verifier
	Profiles *auth.ProfileService
	// Limiter is optional; nil disables rate limiting.
	Limiter *ratelimit.RateLimiter
	// DevIssuer, when set, serves POST /auth/dev/token.
	DevIssuer      *auth.Issuer
	AllowedOrigins []string
}

// NewRouter returns the complete middleware-wrapped handler.
func NewRouter(cfg RouterConfig) http.Handler {
	requireIdentity := auth.RequireIdentity(cfg.Verifier, cfg.Profiles)
	requireAuth := requireIdentity
	if cfg.Limiter != nil {
		limit := ratelimit.RateLimitMiddleware(cfg.Limiter, callerUID)
		requireAuth = func(next http.Handler) http.Handler {
			return requireIdentity(limit(next))
		}
	}

	mux := http.NewServeMux()
	cfg.Handler.RegisterRoutes(mux, requireAuth)
	if cfg.DevIssuer != nil {
		cfg.DevIssuer.RegisterRoutes(mux)
	}

	var h http.Handler = mux
	h = CORSMiddleware(cfg.AllowedOrigins, h)
	h = obs.AccessLogMiddleware("api", h)
	h = obs.RequestContextMiddleware(h)
	return h
}

func callerUID(r *http.Request) string {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return ""
	}
	return id.UID
}
