package filesystem

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"media-engine/internal/logging"
)

// WriteAtomic streams r into path via a temporary file in the same directory
// followed by a rename, so a concurrent reader either sees the complete file
// or no file at all.
func WriteAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		if err := tmp.Close(); err != nil && !os.IsNotExist(err) {
			logging.Debug("temp file close: %v", err)
		}
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			logging.Warn("failed to remove temp file %s: %v", tmpName, err)
		}
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return 0, fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return 0, fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	return n, nil
}

// WriteAtomicBytes is WriteAtomic for an in-memory payload.
func WriteAtomicBytes(path string, data []byte) error {
	_, err := WriteAtomic(path, bytes.NewReader(data))
	return err
}

// RenameAtomic moves a finished temporary output into its final location,
// creating parent directories as needed.
func RenameAtomic(tmpPath, finalPath string) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", finalPath, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, finalPath, err)
	}
	return nil
}

// EnsureDir creates a directory tree.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}
