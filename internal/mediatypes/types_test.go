package mediatypes

import "testing"

func TestContentType(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".mp4", "video/mp4"},
		{".mkv", "video/x-matroska"},
		{".m3u8", "application/vnd.apple.mpegurl"},
		{".ts", "video/mp2t"},
		{".flac", "audio/flac"},
		{".jpg", "image/jpeg"},
		{".xyz", "application/octet-stream"},
		{"", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := ContentType(tt.ext); got != tt.want {
			t.Errorf("ContentType(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}
