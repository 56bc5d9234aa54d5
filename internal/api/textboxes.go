package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kuitang/sticky-canvas/internal/docstore"
	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/obs"
)

// maxWriteBody bounds a PUT body: the longest allowed text, JSON-escaped,
// plus the coordinates.
const maxWriteBody = 6*notes.MaxTextBytes + 1024

// NotesResponse is the body of the collection listing.
type NotesResponse struct {
	Notes []notes.Note `json:"notes"`
}

// ExportsResponse lists earlier exports.
type ExportsResponse struct {
	Exports []docstore.ExportResult `json:"exports"`
}

// HandleListTextboxes handles GET /api/apps/{app}/textboxes.
func (h *Handler) HandleListTextboxes(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(r)
	if !ok {
		unauthenticated(w)
		return
	}
	all, err := h.store.List(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if all == nil {
		all = []notes.Note{}
	}
	writeJSON(w, http.StatusOK, NotesResponse{Notes: all})
}

// HandleGetTextbox handles GET /api/apps/{app}/textboxes/{id}.
func (h *Handler) HandleGetTextbox(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(r)
	if !ok {
		unauthenticated(w)
		return
	}
	n, err := h.store.Get(r.Context(), scope, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// HandlePutTextbox handles PUT /api/apps/{app}/textboxes/{id}: a partial
// merge that creates the note when it does not exist.
func (h *Handler) HandlePutTextbox(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(r)
	if !ok {
		unauthenticated(w)
		return
	}
	var f notes.Fields
	if !decodeJSON(w, r, maxWriteBody, &f) {
		return
	}
	n, err := h.store.Upsert(r.Context(), scope, r.PathValue("id"), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// HandleDeleteTextbox handles DELETE /api/apps/{app}/textboxes/{id}.
// Deleting a missing note is not an error.
func (h *Handler) HandleDeleteTextbox(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(r)
	if !ok {
		unauthenticated(w)
		return
	}
	if err := h.store.Delete(r.Context(), scope, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStreamTextboxes handles GET /api/apps/{app}/textboxes/stream. Each
// SSE event carries a full snapshot plus the changes since the previous
// event; the first event tags every note added.
func (h *Handler) HandleStreamTextboxes(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(r)
	if !ok {
		unauthenticated(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorMessage(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	sub, err := h.store.Subscribe(ctx, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer sub.Close()

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "retry: 2000\n\n")
	flusher.Flush()

	logger := obs.From(ctx).With("pkg", "api")
	logger.Info("stream opened", "collection", scope.CollectionPath())
	defer logger.Info("stream closed", "collection", scope.CollectionPath())

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		if snap, ok := sub.Take(); ok {
			if err := writeEvent(w, snap); err != nil {
				logger.Debug("stream write failed", "error", err)
				return
			}
			flusher.Flush()
		}
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-sub.Ready():
		}
	}
}

func writeEvent(w http.ResponseWriter, snap notes.Snapshot) error {
	if snap.Notes == nil {
		snap.Notes = []notes.Note{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// HandleCreateExport handles POST /api/apps/{app}/exports.
func (h *Handler) HandleCreateExport(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(r)
	if !ok {
		unauthenticated(w)
		return
	}
	res, err := h.store.Export(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleListExports handles GET /api/apps/{app}/exports.
func (h *Handler) HandleListExports(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(r)
	if !ok {
		unauthenticated(w)
		return
	}
	list, err := h.store.ListExports(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ExportsResponse{Exports: list})
}
