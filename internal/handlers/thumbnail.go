package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"media-engine/internal/assetpath"
	"media-engine/internal/logging"
	"media-engine/internal/thumbnail"
)

// ThumbnailMedia serves GET /media/thumbnail/{path}. Thumbnails are
// immutable for a given (path, size, time) so clients may cache them for a
// day; refresh=true regenerates after a source changed.
func (h *Handlers) ThumbnailMedia(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)

	path, err := assetpath.New(mux.Vars(r)["path"])
	if err != nil {
		writeJSONError(w, "invalid path", http.StatusForbidden)
		return
	}
	if !h.canRead(r, principal, path) {
		writeJSONError(w, "access denied", http.StatusForbidden)
		return
	}

	if thumbnail.KindOf(path.String()) == thumbnail.KindOther {
		writeJSONError(w, "unsupported media type", http.StatusUnsupportedMediaType)
		return
	}

	query := r.URL.Query()
	opts := thumbnail.Options{
		Width:   queryInt(query.Get("width")),
		Height:  queryInt(query.Get("height")),
		Refresh: strings.EqualFold(query.Get("refresh"), "true"),
	}
	if t, err := strconv.ParseFloat(query.Get("time"), 64); err == nil && t > 0 {
		opts.SeekSeconds = t
	}

	data, err := h.thumbs.Get(r.Context(), path.String(), path.Filesystem(h.mediaDir), opts)
	if err != nil {
		logging.Debug("thumbnail failed for %s: %v", path, err)
		writeJSONError(w, "thumbnail unavailable", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := w.Write(data); err != nil {
		logging.Debug("thumbnail write failed for %s: %v", path, err)
	}
}

func queryInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
