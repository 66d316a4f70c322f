// Package assetpath defines the validated logical path type used to address
// media assets. Every component that touches storage receives a Path built by
// New; raw request strings never reach the filesystem layer.
package assetpath

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrInvalid is returned for paths containing traversal segments, absolute
// prefixes, or forbidden characters.
var ErrInvalid = errors.New("invalid asset path")

// Path is a normalized, slash-separated logical path relative to the media
// root. The zero value is the root itself.
type Path struct {
	p string
}

// New validates and normalizes a raw path string. Backslashes are treated as
// separators so Windows-style input cannot smuggle traversal segments past
// validation.
func New(raw string) (Path, error) {
	cleaned := strings.ReplaceAll(raw, "\\", "/")

	if strings.ContainsRune(cleaned, 0) {
		return Path{}, ErrInvalid
	}
	if strings.HasPrefix(cleaned, "/") {
		return Path{}, ErrInvalid
	}
	// Reject drive-letter style absolute paths up front.
	if len(cleaned) >= 2 && cleaned[1] == ':' {
		return Path{}, ErrInvalid
	}

	parts := strings.Split(cleaned, "/")
	segments := make([]string, 0, len(parts))
	for _, seg := range parts {
		switch seg {
		case "", ".":
			// Collapse duplicate slashes and self references.
			continue
		case "..":
			return Path{}, ErrInvalid
		}
		segments = append(segments, seg)
	}

	return Path{p: strings.Join(segments, "/")}, nil
}

// String returns the normalized slash-separated path.
func (p Path) String() string {
	return p.p
}

// IsRoot reports whether the path addresses the media root itself.
func (p Path) IsRoot() bool {
	return p.p == ""
}

// Base returns the final path segment, or "" for the root.
func (p Path) Base() string {
	if p.p == "" {
		return ""
	}
	segs := strings.Split(p.p, "/")
	return segs[len(segs)-1]
}

// Ext returns the lowercased file extension without the leading dot.
func (p Path) Ext() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(p.Base()), "."))
}

// Prefixes returns the ordered list of path prefixes from the root to the
// path inclusive, e.g. "a/b/c" -> ["", "a", "a/b", "a/b/c"].
func (p Path) Prefixes() []string {
	out := []string{""}
	if p.p == "" {
		return out
	}
	segs := strings.Split(p.p, "/")
	for i := range segs {
		out = append(out, strings.Join(segs[:i+1], "/"))
	}
	return out
}

// DescendantOf reports whether the path equals prefix or sits below it at a
// segment boundary. "a/bc" is not a descendant of "a/b".
func (p Path) DescendantOf(prefix string) bool {
	if prefix == "" {
		return true
	}
	if p.p == prefix {
		return true
	}
	return strings.HasPrefix(p.p, prefix+"/")
}

// Filesystem resolves the path under the given root directory using the
// platform separator.
func (p Path) Filesystem(root string) string {
	if p.p == "" {
		return root
	}
	return filepath.Join(root, filepath.FromSlash(p.p))
}
