package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"media-engine/internal/access"
	"media-engine/internal/assetpath"
	"media-engine/internal/logging"
	"media-engine/internal/share"
)

type createShareRequest struct {
	Path            string `json:"path"`
	ExpiresIn       int64  `json:"expiresIn"` // seconds, 0 means no expiry
	RequirePassword bool   `json:"requirePassword"`
	MaxAccesses     int64  `json:"maxAccesses"`
	RequireAccount  bool   `json:"requireAccount"`
}

type createShareResponse struct {
	ShareToken string `json:"shareToken"`
	ShareURL   string `json:"shareUrl"`
	Password   string `json:"password,omitempty"`
	ExpiresAt  string `json:"expiresAt,omitempty"`
}

// CreateShare serves POST /files/share. The caller needs the share
// permission on the path being shared.
func (h *Handlers) CreateShare(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)

	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	path, err := assetpath.New(req.Path)
	if err != nil {
		writeJSONError(w, "invalid path", http.StatusForbidden)
		return
	}
	if !h.resolver.Can(r.Context(), principal, path, access.PermShare) {
		writeJSONError(w, "access denied", http.StatusForbidden)
		return
	}

	tok, password, err := h.issuer.Issue(r.Context(), path, share.IssueOptions{
		TTL:             time.Duration(req.ExpiresIn) * time.Second,
		RequirePassword: req.RequirePassword,
		MaxAccesses:     req.MaxAccesses,
		RequireAccount:  req.RequireAccount,
	})
	if err != nil {
		logging.Error("share issue failed for %s: %v", path, err)
		writeJSONError(w, "failed to create share", http.StatusInternalServerError)
		return
	}

	resp := createShareResponse{
		ShareToken: tok.Key,
		ShareURL:   "/shared/" + tok.Key,
		Password:   password,
	}
	if !tok.ExpiresAt.IsZero() {
		resp.ExpiresAt = tok.ExpiresAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, resp)
}

type sharedResponse struct {
	share.Token
	StreamURL string `json:"streamUrl"`
}

// GetShared serves GET /shared/{token}: validates the token, checks its
// gates, consumes one access and returns the share metadata.
func (h *Handlers) GetShared(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["token"]

	tok, err := h.issuer.Validate(r.Context(), key)
	switch {
	case err == nil:
	case errors.Is(err, share.ErrNotFound):
		writeJSONError(w, "share not found", http.StatusNotFound)
		return
	case errors.Is(err, share.ErrExpired):
		writeJSONError(w, "share expired", http.StatusGone)
		return
	case errors.Is(err, share.ErrExhausted):
		writeJSONError(w, "share exhausted", http.StatusGone)
		return
	default:
		logging.Error("share validate failed for %s: %v", key, err)
		writeJSONError(w, "share store unavailable", http.StatusInternalServerError)
		return
	}

	if tok.RequireAccount && principalFrom(r).Anonymous() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]interface{}{
			"success":        false,
			"requireAccount": true,
			"message":        "share requires a signed-in account",
		})
		return
	}

	if tok.PasswordProtected() {
		password := r.URL.Query().Get("password")
		if password == "" {
			password = r.Header.Get(headerSharePassword)
		}
		if err := h.issuer.CheckPassword(tok, password); err != nil {
			writeJSONError(w, "password required", http.StatusUnauthorized)
			return
		}
	}

	// Consuming the access is a hard failure when the store is down: a
	// token must never be readable without its counter moving.
	if err := h.issuer.Redeem(r.Context(), key); err != nil {
		if errors.Is(err, share.ErrExhausted) {
			writeJSONError(w, "share exhausted", http.StatusGone)
			return
		}
		logging.Error("share redeem failed for %s: %v", key, err)
		writeJSONError(w, "share store unavailable", http.StatusInternalServerError)
		return
	}
	tok.AccessCount++

	// The stream URL carries the token so the recipient's player presents
	// it on the media endpoints, where it is re-validated per request.
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, sharedResponse{
		Token:     tok,
		StreamURL: "/media/stream/" + tok.Path + "?share=" + url.QueryEscape(tok.Key),
	})
}

// RevokeShare serves DELETE /shared/{token}. Admins and holders of the
// share permission on the underlying path may revoke.
func (h *Handlers) RevokeShare(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)
	key := mux.Vars(r)["token"]

	// Expired and exhausted tokens can still be revoked, so read the raw
	// record instead of validating it.
	tok, err := h.db.GetShare(r.Context(), key)
	if err != nil {
		if errors.Is(err, share.ErrNotFound) {
			writeJSONError(w, "share not found", http.StatusNotFound)
			return
		}
		logging.Error("share lookup failed for %s: %v", key, err)
		writeJSONError(w, "share store unavailable", http.StatusInternalServerError)
		return
	}

	path, err := assetpath.New(tok.Path)
	if err != nil || !h.resolver.Can(r.Context(), principal, path, access.PermShare) {
		writeJSONError(w, "access denied", http.StatusForbidden)
		return
	}

	if err := h.issuer.Revoke(r.Context(), key); err != nil {
		logging.Error("share revoke failed for %s: %v", key, err)
		writeJSONError(w, "failed to revoke share", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, "revoked")
}
