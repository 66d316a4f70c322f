package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"media-engine/internal/assetpath"
	"media-engine/internal/filesystem"
	"media-engine/internal/hls"
	"media-engine/internal/logging"
	"media-engine/internal/mediatypes"
	"media-engine/internal/probe"
	"media-engine/internal/thumbnail"
	"media-engine/internal/transcoder"
)

// jobResponse is the body returned while a transcode or HLS preparation is
// still running.
type jobResponse struct {
	Status string `json:"status"`
	ETA    int    `json:"eta"`
}

// StreamMedia serves GET /media/stream/{path}. Browser-safe sources stream
// directly with range support; everything else goes through the planner
// and, when needed, a background transcode that the client polls for.
func (h *Handlers) StreamMedia(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)

	path, err := assetpath.New(mux.Vars(r)["path"])
	if err != nil {
		writeJSONError(w, "invalid path", http.StatusForbidden)
		return
	}
	shareKey, ok := h.authorizeRead(r, principal, path)
	if !ok {
		writeJSONError(w, "access denied", http.StatusForbidden)
		return
	}

	filePath := path.Filesystem(h.mediaDir)
	if _, err := filesystem.Stat(filePath, filesystem.DefaultRetryConfig()); err != nil {
		writeJSONError(w, "asset not found", http.StatusNotFound)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "hls") {
		h.streamHLS(w, r, path.String(), filePath, shareKey)
		return
	}

	ext := strings.ToLower(path.Ext())

	// Images, audio and anything else without a video track stream as
	// stored; only video is a transcode candidate.
	if thumbnail.KindOf(path.String()) != thumbnail.KindVideo {
		if !h.consumeShare(w, r, shareKey) {
			return
		}
		h.responder.ServeFile(w, r, filePath, mediatypes.ContentType(ext))
		return
	}

	quality := parseQuality(r.URL.Query().Get("quality"))
	container := strings.TrimPrefix(ext, ".")

	decision, err := h.planner.Plan(r.Context(), filePath, container, quality)
	if err != nil {
		if errors.Is(err, probe.ErrUnsupported) {
			writeJSONError(w, "unsupported media type", http.StatusUnsupportedMediaType)
			return
		}
		logging.Error("plan failed for %s: %v", path, err)
		writeJSONError(w, "failed to inspect media", http.StatusInternalServerError)
		return
	}

	if decision.ServeOriginal {
		if !h.consumeShare(w, r, shareKey) {
			return
		}
		h.responder.ServeFile(w, r, filePath, mediatypes.ContentType(ext))
		return
	}

	res, err := h.coordinator.Request(r.Context(), path.String(), filePath, decision.Target, "mp4")
	if err != nil {
		logging.Error("rendition request failed for %s: %v", path, err)
		writeJSONError(w, "job coordination unavailable", http.StatusInternalServerError)
		return
	}

	switch res.Status {
	case transcoder.StatusReady:
		if !h.consumeShare(w, r, shareKey) {
			return
		}
		h.responder.ServeFile(w, r, res.Location, "video/mp4")
	case transcoder.StatusFailed:
		writeJSONError(w, "transcode failed, retry later", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, jobResponse{Status: string(res.Status), ETA: res.ETASeconds})
	}
}

func (h *Handlers) streamHLS(w http.ResponseWriter, r *http.Request, path, filePath, shareKey string) {
	res, err := h.preparer.Prepare(r.Context(), path, filePath)
	if err != nil {
		logging.Error("hls request failed for %s: %v", path, err)
		writeJSONError(w, "job coordination unavailable", http.StatusInternalServerError)
		return
	}

	switch res.Status {
	case hls.StatusReady:
		// The playable URL is the delivery point; manifest and segment
		// fetches that follow do not consume further accesses.
		if !h.consumeShare(w, r, shareKey) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, map[string]string{
			"status": "ready",
			"url":    "/media/hls/" + res.JobID + "/master.m3u8",
		})
	case hls.StatusFailed:
		writeJSONError(w, "hls preparation failed, retry later", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, jobResponse{Status: string(res.Status), ETA: res.ETASeconds})
	}
}

// parseQuality reads a target height like "720" or "720p". Anything
// unparsable means "as encoded", matching how a malformed Range header
// degrades to a full response.
func parseQuality(raw string) int {
	if raw == "" {
		return 0
	}
	raw = strings.TrimSuffix(strings.ToLower(raw), "p")
	q, err := strconv.Atoi(raw)
	if err != nil || q < 0 {
		logging.Debug("ignoring invalid quality %q", raw)
		return 0
	}
	return q
}

// MediaInfo serves GET /media/info/{path}: the probe result plus the plan
// decision, so clients can pick a rendition before streaming.
func (h *Handlers) MediaInfo(w http.ResponseWriter, r *http.Request) {
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

	filePath := path.Filesystem(h.mediaDir)
	if _, err := filesystem.Stat(filePath, filesystem.DefaultRetryConfig()); err != nil {
		writeJSONError(w, "asset not found", http.StatusNotFound)
		return
	}

	container := strings.TrimPrefix(strings.ToLower(path.Ext()), ".")
	decision, err := h.planner.Plan(r.Context(), filePath, container, 0)
	if err != nil {
		if errors.Is(err, probe.ErrUnsupported) {
			writeJSONError(w, "unsupported media type", http.StatusUnsupportedMediaType)
			return
		}
		logging.Error("probe failed for %s: %v", path, err)
		writeJSONError(w, "failed to inspect media", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, struct {
		Path string `json:"path"`
		*transcoder.Decision
	}{Path: path.String(), Decision: decision})
}
