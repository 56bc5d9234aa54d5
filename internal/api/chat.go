package api

import (
	"net/http"

	"github.com/kuitang/sticky-canvas/internal/chat"
	"github.com/kuitang/sticky-canvas/internal/logutil"
	"github.com/kuitang/sticky-canvas/internal/obs"
)

const maxChatBody = 256 << 10

// HandleChat handles POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if !decodeJSON(w, r, maxChatBody, &req) {
		return
	}
	obs.From(r.Context()).With("pkg", "api").Debug("chat request",
		append([]any{"history", len(req.History)}, logutil.TextStats(req.Message)...)...)

	answer, err := h.chat.Reply(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat.Response{Response: answer})
}
