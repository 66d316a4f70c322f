package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"media-engine/internal/assetpath"
	"media-engine/internal/mediatypes"
)

// ServeHLS serves GET /media/hls/{jobId}/{file}: the master manifest, a
// variant playlist, or a segment. Access is checked against the source
// path the job was prepared from, so a job id alone is not a capability.
func (h *Handlers) ServeHLS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["jobId"]

	// The file var comes from the URL; the same traversal rules apply as
	// for media paths.
	file, err := assetpath.New(vars["file"])
	if err != nil || file.IsRoot() {
		writeJSONError(w, "invalid path", http.StatusForbidden)
		return
	}

	source, ok, err := h.preparer.SourcePath(r.Context(), jobID)
	if err != nil {
		writeJSONError(w, "job coordination unavailable", http.StatusInternalServerError)
		return
	}
	if !ok {
		writeJSONError(w, "job not found", http.StatusNotFound)
		return
	}

	sourcePath, err := assetpath.New(source)
	if err != nil {
		writeJSONError(w, "job not found", http.StatusNotFound)
		return
	}
	if !h.canRead(r, principalFrom(r), sourcePath) {
		writeJSONError(w, "access denied", http.StatusForbidden)
		return
	}

	target := filepath.Join(h.preparer.Dir(jobID), filepath.FromSlash(file.String()))
	if _, err := os.Stat(target); err != nil {
		writeJSONError(w, "not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", mediatypes.ContentType(strings.ToLower(filepath.Ext(target))))
	http.ServeFile(w, r, target)
}
