package streaming

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates a write exceeded the configured timeout,
	// typically a client receiving data too slowly.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates the client disconnected before the stream
	// completed, detected via the request context.
	ErrClientGone = errors.New("client disconnected")
)

// WriterConfig configures timeout-protected streaming.
type WriterConfig struct {
	// WriteTimeout is the maximum time for a single chunk write.
	WriteTimeout time.Duration
	// ChunkSize is the unit of writing and of cancellation checks.
	ChunkSize int
}

// DefaultWriterConfig returns sensible defaults for media payloads.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		WriteTimeout: 30 * time.Second,
		ChunkSize:    64 * 1024,
	}
}

// Copy streams from r to w in chunks, checking ctx between chunks and
// bounding each write by the configured timeout. It returns the bytes
// written and ErrClientGone/ErrWriteTimeout as appropriate. Bytes are
// delivered strictly in read order.
func Copy(ctx context.Context, w http.ResponseWriter, r io.Reader, config WriterConfig) (int64, error) {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultWriterConfig().ChunkSize
	}

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, config.ChunkSize)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ErrClientGone
		default:
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			wn, writeErr := writeWithTimeout(w, buf[:n], config.WriteTimeout)
			written += int64(wn)
			if writeErr != nil {
				if ctx.Err() != nil {
					return written, ErrClientGone
				}
				return written, writeErr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// writeWithTimeout performs one write, failing with ErrWriteTimeout if it
// does not complete in time. The abandoned write goroutine is left to finish
// against the dead connection; the http server reclaims it on close.
func writeWithTimeout(w io.Writer, p []byte, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return w.Write(p)
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	var once sync.Once

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	go func() {
		n, err := w.Write(p)
		once.Do(func() { done <- result{n, err} })
	}()

	select {
	case res := <-done:
		return res.n, res.err
	case <-timer.C:
		return 0, ErrWriteTimeout
	}
}
