// Package api serves the canvas HTTP API: the per-user textbox collection
// and its change stream, snapshot exports, the caller's profile, and the
// public/secret/chat backend routes.
package api

import (
	"net/http"
	"time"

	"github.com/kuitang/sticky-canvas/internal/auth"
	"github.com/kuitang/sticky-canvas/internal/chat"
	"github.com/kuitang/sticky-canvas/internal/docstore"
)

// DefaultHeartbeat is the interval of SSE comment heartbeats.
const DefaultHeartbeat = 25 * time.Second

// Handler provides the API's HTTP handlers.
type Handler struct {
	store     *docstore.Service
	profiles  *auth.ProfileService
	chat      *chat.Service
	heartbeat time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithHeartbeat overrides the SSE heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// NewHandler creates the API handler. profiles and chatSvc may be nil; the
// routes depending on them then answer 503.
func NewHandler(store *docstore.Service, profiles *auth.ProfileService, chatSvc *chat.Service, opts ...Option) *Handler {
	h := &Handler{
		store:     store,
		profiles:  profiles,
		chat:      chatSvc,
		heartbeat: DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers every API route. requireAuth wraps the routes
// that need a signed-in caller.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	protect := func(f http.HandlerFunc) http.Handler { return requireAuth(f) }

	// Textbox collection of the calling user
	mux.Handle("GET /api/apps/{app}/textboxes", protect(h.HandleListTextboxes))
	mux.Handle("GET /api/apps/{app}/textboxes/stream", protect(h.HandleStreamTextboxes))
	mux.Handle("GET /api/apps/{app}/textboxes/{id}", protect(h.HandleGetTextbox))
	mux.Handle("PUT /api/apps/{app}/textboxes/{id}", protect(h.HandlePutTextbox))
	mux.Handle("DELETE /api/apps/{app}/textboxes/{id}", protect(h.HandleDeleteTextbox))

	// Snapshot exports
	mux.Handle("POST /api/apps/{app}/exports", protect(h.HandleCreateExport))
	mux.Handle("GET /api/apps/{app}/exports", protect(h.HandleListExports))

	// Caller profile
	mux.Handle("GET /api/me", protect(h.HandleMe))
	mux.Handle("PUT /api/me/display-name", protect(h.HandleUpdateDisplayName))

	// Backend routes
	mux.HandleFunc("GET /api/public-data", h.HandlePublicData)
	mux.Handle("GET /api/secret-data", protect(h.HandleSecretData))
	mux.Handle("POST /api/chat", protect(h.HandleChat))

	mux.HandleFunc("GET /healthz", h.HandleHealthz)
}

// scopeOf builds the collection scope of an authenticated request. The user
// is always the token subject.
func scopeOf(r *http.Request) (docstore.Scope, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return docstore.Scope{}, false
	}
	return docstore.Scope{AppID: r.PathValue("app"), UserID: id.UID}, true
}
