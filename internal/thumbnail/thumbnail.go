// Package thumbnail renders and caches preview images for media files.
package thumbnail

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"media-engine/internal/filesystem"
	"media-engine/internal/logging"
	"media-engine/internal/metrics"
	"media-engine/internal/probe"

	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultSize is the bounding box when the caller gives no dimensions.
	DefaultSize = 320

	// defaultSeekSeconds is where video frames are grabbed from when the
	// caller gives no timestamp. Skipping the first seconds avoids black
	// lead-in frames.
	defaultSeekSeconds = 3.0

	jpegQuality = 80
)

// Kind classifies a file for thumbnail purposes.
type Kind int

const (
	KindOther Kind = iota
	KindImage
	KindVideo
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".webp": true, ".tiff": true, ".tif": true,
	".heic": true, ".heif": true, ".avif": true, ".jxl": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".wmv": true, ".flv": true, ".webm": true, ".m4v": true,
	".mpeg": true, ".mpg": true, ".3gp": true, ".ts": true,
}

// KindOf classifies a path by extension.
func KindOf(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	if imageExts[ext] {
		return KindImage
	}
	if videoExts[ext] {
		return KindVideo
	}
	return KindOther
}

// Options select the rendered thumbnail. Zero values pick defaults.
type Options struct {
	Width       int
	Height      int
	SeekSeconds float64
	// Refresh regenerates the thumbnail even if a cached copy exists.
	Refresh bool
}

func (o Options) normalized() Options {
	if o.Width <= 0 {
		o.Width = DefaultSize
	}
	if o.Height <= 0 {
		o.Height = DefaultSize
	}
	if o.SeekSeconds <= 0 {
		o.SeekSeconds = defaultSeekSeconds
	}
	return o
}

// Generator renders thumbnails and caches the encoded JPEG on disk. Each
// distinct (path, size, seek) combination caches separately, and only one
// goroutine renders a given combination at a time.
type Generator struct {
	cacheDir string
	prober   probe.Prober

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGenerator creates a generator caching under cacheDir.
func NewGenerator(cacheDir string, prober probe.Prober) *Generator {
	dir := filepath.Join(cacheDir, "thumbnails")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.Warn("failed to create thumbnail cache dir: %v", err)
	}
	return &Generator{
		cacheDir: dir,
		prober:   prober,
		locks:    make(map[string]*sync.Mutex),
	}
}

// cacheKey is stable across restarts so the on-disk cache survives them.
func cacheKey(path string, opts Options) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%d|%.3f", path, opts.Width, opts.Height, opts.SeekSeconds)))
	return fmt.Sprintf("%x.jpg", sum)
}

func (g *Generator) lockFor(key string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	return l
}

// Get returns the encoded JPEG thumbnail for filePath, rendering and
// caching it on a miss. path is the logical asset path used only for the
// cache key, filePath the resolved location on disk.
func (g *Generator) Get(ctx context.Context, path, filePath string, opts Options) ([]byte, error) {
	opts = opts.normalized()

	if _, err := filesystem.Stat(filePath, filesystem.DefaultRetryConfig()); err != nil {
		metrics.ThumbnailRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("file not accessible: %w", err)
	}

	key := cacheKey(path, opts)
	cachePath := filepath.Join(g.cacheDir, key)

	if !opts.Refresh {
		if data, err := os.ReadFile(cachePath); err == nil {
			logging.Debug("thumbnail cache hit: %s", path)
			metrics.ThumbnailRequestsTotal.WithLabelValues("hit").Inc()
			return data, nil
		}
	}

	lock := g.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have rendered it while we waited.
	if !opts.Refresh {
		if data, err := os.ReadFile(cachePath); err == nil {
			metrics.ThumbnailRequestsTotal.WithLabelValues("hit").Inc()
			return data, nil
		}
	}

	data, err := g.render(ctx, filePath, opts)
	if err != nil {
		metrics.ThumbnailRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ThumbnailRequestsTotal.WithLabelValues("miss").Inc()

	if err := filesystem.WriteAtomicBytes(cachePath, data); err != nil {
		logging.Warn("failed to cache thumbnail %s: %v", cachePath, err)
	}
	return data, nil
}

func (g *Generator) render(ctx context.Context, filePath string, opts Options) ([]byte, error) {
	var img image.Image
	var err error

	switch KindOf(filePath) {
	case KindImage:
		img, err = g.renderImage(filePath, opts)
	case KindVideo:
		img, err = g.renderVideoFrame(ctx, filePath, opts)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(filePath))
	}
	if err != nil {
		return nil, fmt.Errorf("thumbnail generation failed: %w", err)
	}

	thumb := imaging.Fit(img, opts.Width, opts.Height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) renderImage(filePath string, opts Options) (image.Image, error) {
	// Decode-time shrinking via vips keeps memory flat on large images.
	if img, err := loadWithVips(filePath, opts.Width, opts.Height); err == nil {
		return img, nil
	} else {
		logging.Debug("vips load failed for %s: %v, falling back", filePath, err)
	}

	img, err := imaging.Open(filePath, imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	logging.Debug("imaging.Open failed for %s: %v, trying stdlib decoders", filePath, err)

	return decodeImageFile(filePath)
}

func decodeImageFile(filePath string) (image.Image, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	logging.Debug("decoded image format: %s for %s", format, filePath)
	return img, nil
}

// renderVideoFrame grabs one frame via ffmpeg. The seek point is clamped
// into the file's duration so short clips still produce a frame.
func (g *Generator) renderVideoFrame(ctx context.Context, filePath string, opts Options) (image.Image, error) {
	seek := opts.SeekSeconds
	if info, err := g.prober.Probe(ctx, filePath); err == nil {
		seek = clampSeek(seek, info.Duration)
	} else {
		logging.Debug("probe failed for %s: %v, seeking to %.1fs anyway", filePath, err, seek)
	}

	img, err := extractFrame(ctx, filePath, seek)
	if err != nil && seek > 0 {
		logging.Debug("frame grab at %.1fs failed for %s: %v, retrying at start", seek, filePath, err)
		img, err = extractFrame(ctx, filePath, 0)
	}
	return img, err
}

// clampSeek keeps the seek point strictly inside the file. Seeks earlier
// than 3s are raised to 3s when the file is long enough, skipping the
// black lead-in frames most encodes open with.
func clampSeek(seek, duration float64) float64 {
	if duration <= 0 {
		return seek
	}
	if seek >= duration {
		seek = duration / 2
	}
	if seek < 3 && duration > 3 {
		seek = 3
	}
	return seek
}

func extractFrame(ctx context.Context, filePath string, seek float64) (image.Image, error) {
	args := []string{}
	if seek > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", seek))
	}
	args = append(args,
		"-i", filePath,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v, stderr: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", filePath)
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}
