package handlers

import (
	"errors"
	"net/http"

	"media-engine/internal/access"
	"media-engine/internal/assetpath"
	"media-engine/internal/logging"
	"media-engine/internal/share"
)

const (
	headerShareToken    = "X-Share-Token"
	headerSharePassword = "X-Share-Password"
)

// shareTokenKey extracts a presented share token from the request, if any.
func shareTokenKey(r *http.Request) string {
	if key := r.URL.Query().Get("share"); key != "" {
		return key
	}
	return r.Header.Get(headerShareToken)
}

// authorizeRead answers whether the request may read path: either the
// principal holds a read grant, or the request presents a valid share
// token for exactly that path. Share tokens are the only way an anonymous
// request gets through outside open-access mode. The returned key is
// non-empty when access came from a share token; the caller consumes it
// with consumeShare once it actually delivers the asset.
func (h *Handlers) authorizeRead(r *http.Request, principal access.Principal, path assetpath.Path) (string, bool) {
	if h.resolver.CanRead(r.Context(), principal, path) {
		return "", true
	}

	key := shareTokenKey(r)
	if key == "" {
		return "", false
	}

	// Exhaustion is enforced at redemption, not here: ranged follow-ups and
	// HLS segment fetches that belong to the final redeemed access must still
	// be served. A fresh open of a spent token fails inside consumeShare.
	tok, err := h.issuer.Validate(r.Context(), key)
	if err != nil && !errors.Is(err, share.ErrExhausted) {
		return "", false
	}
	if tok.Path != path.String() {
		return "", false
	}
	if tok.RequireAccount && principal.Anonymous() {
		return "", false
	}
	if tok.PasswordProtected() {
		password := r.URL.Query().Get("password")
		if password == "" {
			password = r.Header.Get(headerSharePassword)
		}
		if h.issuer.CheckPassword(tok, password) != nil {
			return "", false
		}
	}
	return key, true
}

// canRead is authorizeRead for endpoints that never consume an access
// (metadata, previews, manifest and segment fetches).
func (h *Handlers) canRead(r *http.Request, principal access.Principal, path assetpath.Path) bool {
	_, ok := h.authorizeRead(r, principal, path)
	return ok
}

// consumeShare redeems one access at the moment media is first delivered.
// Ranged follow-ups continue the access the opening request redeemed, so a
// chunked playback session counts once. Returns false after writing the
// error response.
func (h *Handlers) consumeShare(w http.ResponseWriter, r *http.Request, key string) bool {
	if key == "" || r.Header.Get("Range") != "" {
		return true
	}
	if err := h.issuer.Redeem(r.Context(), key); err != nil {
		if errors.Is(err, share.ErrExhausted) {
			writeJSONError(w, "share exhausted", http.StatusGone)
			return false
		}
		logging.Error("share redeem failed for %s: %v", key, err)
		writeJSONError(w, "share store unavailable", http.StatusInternalServerError)
		return false
	}
	return true
}
