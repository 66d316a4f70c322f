package streaming

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"media-engine/internal/filesystem"
	"media-engine/internal/logging"
	"media-engine/internal/metrics"
)

// DefaultMaxChunkBytes caps how much of a requested range is served per
// response. Clients issue follow-up range requests for the rest, which keeps
// per-request memory and socket bursts bounded.
const DefaultMaxChunkBytes = 1 << 20 // 1 MiB

// Responder serves local files with HTTP byte-range semantics: the
// single-range subset media players actually use.
type Responder struct {
	maxChunkBytes int64
	retry         filesystem.RetryConfig
	writer        WriterConfig
}

// NewResponder creates a range responder. maxChunkBytes <= 0 selects the
// default clamp.
func NewResponder(maxChunkBytes int64) *Responder {
	if maxChunkBytes <= 0 {
		maxChunkBytes = DefaultMaxChunkBytes
	}
	return &Responder{
		maxChunkBytes: maxChunkBytes,
		retry:         filesystem.DefaultRetryConfig(),
		writer:        DefaultWriterConfig(),
	}
}

// ServeFile streams filePath to the client, honoring a single
// "Range: bytes=start-end" header. Requests without a Range header (or with
// one we do not support, like suffix ranges) get the full file with 200.
// A start beyond the file gets 416. Read errors after the header is sent
// terminate the connection; before any byte is sent they produce a 500.
func (s *Responder) ServeFile(w http.ResponseWriter, r *http.Request, filePath, contentType string) {
	info, err := filesystem.Stat(filePath, s.retry)
	if err != nil {
		logging.Error("range responder stat %s: %v", filePath, err)
		http.Error(w, "Failed to access file", http.StatusInternalServerError)
		return
	}
	size := info.Size()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	start, end, isRange := parseRange(r.Header.Get("Range"), size)
	if isRange && start >= size {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Requested range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if isRange && end-start+1 > s.maxChunkBytes {
		// Clamp the window; the client follows up for the rest.
		end = start + s.maxChunkBytes - 1
	}

	file, err := filesystem.Open(filePath, s.retry)
	if err != nil {
		logging.Error("range responder open %s: %v", filePath, err)
		http.Error(w, "Failed to open file", http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close %s: %v", filePath, err)
		}
	}()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	var reader io.Reader
	if isRange {
		length := end - start + 1
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusPartialContent)
		reader = io.NewSectionReader(file, start, length)
		metrics.RangeRequestsTotal.WithLabelValues("partial").Inc()
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		reader = file
		metrics.RangeRequestsTotal.WithLabelValues("full").Inc()
	}

	written, err := Copy(r.Context(), w, reader, s.writer)
	metrics.RangeBytesTotal.Add(float64(written))
	if err != nil {
		// Headers are out; the only honest response is to drop the
		// connection. A disconnected client is routine, not a fault.
		if errors.Is(err, ErrClientGone) {
			logging.Debug("client left mid-stream for %s after %d bytes", filePath, written)
			return
		}
		logging.Error("stream error for %s after %d bytes: %v", filePath, written, err)
	}
}

// parseRange parses a single "bytes=start-end" header. end is inclusive and
// clamped to size-1 when omitted or past EOF. Suffix ranges ("-N") and
// multi-range requests are unsupported and treated as no range at all.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	if header == "" || size == 0 {
		return 0, 0, false
	}
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false
	}

	startStr, endStr, found := strings.Cut(strings.TrimSpace(spec), "-")
	if !found || startStr == "" {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}

	if endStr == "" {
		return start, size - 1, true
	}
	end, err = strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	if end > size-1 {
		end = size - 1
	}
	return start, end, true
}
