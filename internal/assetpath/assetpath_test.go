package assetpath

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"Simple", "movies/action/movie.mkv", "movies/action/movie.mkv", false},
		{"Root", "", "", false},
		{"TrailingSlash", "movies/", "movies", false},
		{"DoubleSlash", "movies//action", "movies/action", false},
		{"SelfSegment", "movies/./action", "movies/action", false},
		{"Traversal", "../etc/passwd", "", true},
		{"EmbeddedTraversal", "movies/../../etc/passwd", "", true},
		{"Absolute", "/etc/passwd", "", true},
		{"Backslash", "movies\\..\\secret", "", true},
		{"BackslashSeparator", "movies\\action", "movies/action", false},
		{"DriveLetter", "c:/windows", "", true},
		{"NullByte", "movies/a\x00b", "", true},
		{"DotDotName", "movies/..hidden", "movies/..hidden", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("New(%q) error = %v, want ErrInvalid", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q) unexpected error: %v", tt.raw, err)
			}
			if p.String() != tt.want {
				t.Errorf("New(%q) = %q, want %q", tt.raw, p.String(), tt.want)
			}
		})
	}
}

func TestPrefixes(t *testing.T) {
	p, err := New("a/b/c")
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"", "a", "a/b", "a/b/c"}
	if got := p.Prefixes(); !reflect.DeepEqual(got, want) {
		t.Errorf("Prefixes() = %v, want %v", got, want)
	}

	root, _ := New("")
	if got := root.Prefixes(); !reflect.DeepEqual(got, []string{""}) {
		t.Errorf("root Prefixes() = %v, want [\"\"]", got)
	}
}

func TestDescendantOf(t *testing.T) {
	tests := []struct {
		path   string
		prefix string
		want   bool
	}{
		{"a/b/c", "a/b", true},
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "", true},
		{"a/bc", "a/b", false},
		{"a", "a/b", false},
	}

	for _, tt := range tests {
		p, err := New(tt.path)
		if err != nil {
			t.Fatal(err)
		}
		if got := p.DescendantOf(tt.prefix); got != tt.want {
			t.Errorf("%q DescendantOf(%q) = %v, want %v", tt.path, tt.prefix, got, tt.want)
		}
	}
}

func TestFilesystem(t *testing.T) {
	p, err := New("movies/movie.mkv")
	if err != nil {
		t.Fatal(err)
	}

	want := filepath.Join("/media", "movies", "movie.mkv")
	if got := p.Filesystem("/media"); got != want {
		t.Errorf("Filesystem() = %q, want %q", got, want)
	}

	root, _ := New("")
	if got := root.Filesystem("/media"); got != "/media" {
		t.Errorf("root Filesystem() = %q, want /media", got)
	}
}

func TestExt(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"movies/Movie.MKV", "mkv"},
		{"clips/clip.mp4", "mp4"},
		{"noext", ""},
	}

	for _, tt := range tests {
		p, err := New(tt.raw)
		if err != nil {
			t.Fatal(err)
		}
		if got := p.Ext(); got != tt.want {
			t.Errorf("Ext(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
