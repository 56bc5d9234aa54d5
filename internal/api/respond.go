package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kuitang/sticky-canvas/internal/errs"
	"github.com/kuitang/sticky-canvas/internal/obs"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the body of the public and secret routes.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeError maps a coded error to its status. Server-side failures are
// logged with the full cause; the response only carries MessageOf.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(errs.CodeOf(err))
	if status >= http.StatusInternalServerError {
		obs.From(r.Context()).With("pkg", "api").Error("request failed",
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeErrorMessage(w, status, errs.MessageOf(err))
}

// decodeJSON reads a JSON body of at most limit bytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeErrorMessage(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}

func unauthenticated(w http.ResponseWriter) {
	writeErrorMessage(w, http.StatusUnauthorized, "Unauthorized: No token provided.")
}
