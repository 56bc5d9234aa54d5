package api

import (
	"fmt"
	"net/http"

	"github.com/kuitang/sticky-canvas/internal/auth"
	"github.com/kuitang/sticky-canvas/internal/errs"
)

// DisplayNameRequest is the body of PUT /api/me/display-name.
type DisplayNameRequest struct {
	DisplayName string `json:"displayName"`
}

// HandleMe handles GET /api/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		unauthenticated(w)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// HandleUpdateDisplayName handles PUT /api/me/display-name.
func (h *Handler) HandleUpdateDisplayName(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		unauthenticated(w)
		return
	}
	if h.profiles == nil {
		writeError(w, r, errs.New(errs.Unavailable, "profiles are not configured"))
		return
	}
	var req DisplayNameRequest
	if !decodeJSON(w, r, 4096, &req) {
		return
	}
	name, err := h.profiles.UpdateDisplayName(r.Context(), id.UID, req.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id.DisplayName = name
	writeJSON(w, http.StatusOK, id)
}

// HandlePublicData handles GET /api/public-data.
func (h *Handler) HandlePublicData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "This is public data, anyone can see it."})
}

// HandleSecretData handles GET /api/secret-data.
func (h *Handler) HandleSecretData(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		unauthenticated(w)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Hello %s! This is a secret message just for you. Your UID is %s.", id.Greeting(), id.UID),
	})
}

// HandleHealthz handles GET /healthz.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
