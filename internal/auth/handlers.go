package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kuitang/sticky-canvas/internal/obs"
)

// DevTokenPath is where Issuer mints development tokens.
const DevTokenPath = "/auth/dev/token"

// DevTokenRequest is the body of POST /auth/dev/token.
type DevTokenRequest struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// DevTokenResponse is an OAuth2-shaped token response.
type DevTokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	Expiry      time.Time `json:"expiry"`
}

// RegisterRoutes registers the development token endpoint. Only call this
// when no external identity provider is configured.
func (i *Issuer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+DevTokenPath, i.HandleDevToken)
}

// HandleDevToken mints a token for any requested uid.
func (i *Issuer) HandleDevToken(w http.ResponseWriter, r *http.Request) {
	var req DevTokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.UID = strings.TrimSpace(req.UID)
	if req.UID == "" || len(req.UID) > 128 || strings.ContainsAny(req.UID, "/\\") {
		writeAuthError(w, http.StatusBadRequest, "uid is required")
		return
	}

	token, exp, err := i.Mint(Identity{UID: req.UID, Email: req.Email, DisplayName: req.Name})
	if err != nil {
		obs.From(r.Context()).With("pkg", "auth").Error("dev token mint failed", "error", err)
		writeAuthError(w, http.StatusInternalServerError, "internal error")
		return
	}
	obs.From(r.Context()).With("pkg", "auth").Info("dev token issued", "uid", req.UID)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(DevTokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(exp).Seconds()),
		Expiry:      exp,
	})
}
