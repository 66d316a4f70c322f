// Package probe extracts container, codec, duration and dimension metadata
// from media files. The production implementation shells out to ffprobe;
// consumers depend on the Prober interface so tests can substitute fixtures.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrUnsupported is returned when a file is not a media container the
// inspector understands.
var ErrUnsupported = errors.New("unsupported media type")

// Info describes a probed media file.
type Info struct {
	Container string  `json:"container"`
	Codec     string  `json:"codec"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Duration  float64 `json:"duration"`
	Bitrate   int64   `json:"bitrate"`
	HasAudio  bool    `json:"hasAudio"`
}

// Prober inspects a media file on disk.
type Prober interface {
	Probe(ctx context.Context, filePath string) (*Info, error)
}

// FFprobe runs the ffprobe binary.
type FFprobe struct{}

// NewFFprobe returns the ffprobe-backed inspector.
func NewFFprobe() *FFprobe {
	return &FFprobe{}
}

// ffprobe -print_format json output shape, limited to the fields we read.
type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe inspects filePath.
func (f *FFprobe) Probe(ctx context.Context, filePath string) (*Info, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, stderr.String())
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("ffprobe output parse error: %w", err)
	}
	return infoFromOutput(&out)
}

func infoFromOutput(out *ffprobeOutput) (*Info, error) {
	info := &Info{
		Container: primaryContainer(out.Format.FormatName),
	}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	info.Bitrate, _ = strconv.ParseInt(out.Format.BitRate, 10, 64)

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			// First video stream wins; attached cover art comes later.
			if info.Codec == "" {
				info.Codec = s.CodecName
				info.Width = s.Width
				info.Height = s.Height
			}
		case "audio":
			info.HasAudio = true
		}
	}

	if info.Codec == "" && !info.HasAudio {
		return nil, ErrUnsupported
	}
	return info, nil
}

// primaryContainer maps ffprobe's comma-separated format_name (e.g.
// "mov,mp4,m4a,3gp,3g2,mj2") to a single container label.
func primaryContainer(formatName string) string {
	names := strings.Split(formatName, ",")
	for _, n := range names {
		switch n {
		case "mp4", "mov":
			return "mp4"
		case "webm":
			return "webm"
		case "matroska":
			return "mkv"
		case "ogg":
			return "ogg"
		case "avi", "flv", "mpegts", "wmv", "asf":
			return n
		}
	}
	if len(names) > 0 && names[0] != "" {
		return names[0]
	}
	return "unknown"
}
