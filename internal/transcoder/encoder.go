package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"media-engine/internal/filesystem"
	"media-engine/internal/logging"
)

// OutputSpec describes a single-file rendition target.
type OutputSpec struct {
	// Path is the final output location. The encoder writes a temporary
	// sibling and renames it into place so readers never see a partial file.
	Path    string
	Height  int
	Bitrate int64
}

// SegmentSpec describes one HLS variant's segment set.
type SegmentSpec struct {
	// Dir receives the variant's child playlist and segments.
	Dir            string
	Variant        Variant
	SegmentSeconds int
}

// Encoder transforms a source file into derived outputs. Implementations
// are long-running; callers supervise them from background workers, not
// request handlers.
type Encoder interface {
	Transcode(ctx context.Context, input string, spec OutputSpec) error
	Segment(ctx context.Context, input string, spec SegmentSpec) error
}

// FFmpeg shells out to the ffmpeg binary.
type FFmpeg struct {
	binary string
}

// NewFFmpeg returns the ffmpeg-backed encoder.
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{binary: "ffmpeg"}
}

// Transcode produces a browser-safe MP4 rendition at spec.Path.
func (f *FFmpeg) Transcode(ctx context.Context, input string, spec OutputSpec) error {
	if err := filesystem.EnsureDir(filepath.Dir(spec.Path)); err != nil {
		return err
	}
	tmp := spec.Path + ".part"

	args := []string{
		"-y",
		"-i", input,
		"-c:v", "libx264",
		"-preset", "fast",
	}
	if spec.Bitrate > 0 {
		bitrate := strconv.FormatInt(spec.Bitrate, 10)
		args = append(args, "-b:v", bitrate, "-maxrate", bitrate, "-bufsize", strconv.FormatInt(spec.Bitrate*2, 10))
	} else {
		args = append(args, "-crf", "23")
	}
	if spec.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", spec.Height))
	}
	args = append(args,
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-f", "mp4",
		tmp,
	)

	if err := f.run(ctx, args); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.Warn("failed to remove partial output %s: %v", tmp, rmErr)
		}
		return err
	}
	return filesystem.RenameAtomic(tmp, spec.Path)
}

// Segment produces one variant's fixed-duration segment set plus its child
// playlist under spec.Dir. Segments appear file-by-file; the caller only
// publishes the master manifest once every variant finished.
func (f *FFmpeg) Segment(ctx context.Context, input string, spec SegmentSpec) error {
	if err := filesystem.EnsureDir(spec.Dir); err != nil {
		return err
	}

	bitrate := strconv.FormatInt(spec.Variant.Bitrate, 10)
	args := []string{
		"-y",
		"-i", input,
		"-c:v", "libx264",
		"-preset", "fast",
		"-b:v", bitrate,
		"-maxrate", bitrate,
		"-bufsize", strconv.FormatInt(spec.Variant.Bitrate*2, 10),
		"-vf", fmt.Sprintf("scale=-2:%d", spec.Variant.Height),
		"-c:a", "aac",
		"-b:a", "128k",
		"-f", "hls",
		"-hls_time", strconv.Itoa(spec.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(spec.Dir, "segment_%03d.ts"),
		filepath.Join(spec.Dir, "playlist.m3u8"),
	}
	return f.run(ctx, args)
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Error("FFmpeg stderr: %s", stderr.String())
		return fmt.Errorf("encoder error: %w", err)
	}
	return nil
}
