package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "nested", "file.bin")

	n, err := WriteAtomic(path, strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("WriteAtomic() error: %v", err)
	}
	if n != 11 {
		t.Errorf("wrote %d bytes, want 11", n)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("content = %q", data)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestWriteAtomicOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")

	if err := WriteAtomicBytes(path, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := WriteAtomicBytes(path, []byte("second")); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("content = %q, want second", data)
	}
}

func TestWriteAtomicFailureLeavesNoPartial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")

	_, err := WriteAtomic(path, &failingReader{})
	if err == nil {
		t.Fatal("expected error from failing reader")
	}

	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("failed write must not leave a file at the final path")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("directory has %d leftover entries", len(entries))
	}
}

type failingReader struct{}

func (*failingReader) Read([]byte) (int, error) {
	return 0, errors.New("read failed")
}

func TestRenameAtomic(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "work.tmp")
	final := filepath.Join(dir, "sub", "final.mp4")

	if err := os.WriteFile(tmp, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RenameAtomic(tmp, final); err != nil {
		t.Fatalf("RenameAtomic() error: %v", err)
	}

	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("temp path should be gone after rename")
	}
	data, err := os.ReadFile(final)
	if err != nil || string(data) != "payload" {
		t.Errorf("final content = %q, err = %v", data, err)
	}
}

func TestStatNonRetryableError(t *testing.T) {
	_, err := Stat(filepath.Join(t.TempDir(), "missing"), DefaultRetryConfig())
	if !os.IsNotExist(err) {
		t.Errorf("Stat(missing) = %v, want not-exist", err)
	}
}

func TestOpenPassesThrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Open(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Error(err)
	}
}

func TestIsNFSStaleError(t *testing.T) {
	if isNFSStaleError(nil) {
		t.Error("nil is not stale")
	}
	if isNFSStaleError(errors.New("random")) {
		t.Error("plain error is not stale")
	}
	if !isNFSStaleError(&os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}) {
		t.Error("ESTALE should be detected through wrapping")
	}
	if isNFSStaleError(&os.PathError{Op: "stat", Path: "/x", Err: syscall.ENOENT}) {
		t.Error("ENOENT is not stale")
	}
}
