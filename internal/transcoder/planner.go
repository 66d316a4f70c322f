package transcoder

import (
	"context"
	"fmt"
	"sort"

	"media-engine/internal/probe"
)

// qualityHeights is the fixed candidate ladder for adaptive variants.
var qualityHeights = []int{240, 360, 480, 720, 1080}

// Browser-safe codec/container allowlist. Anything outside it gets
// transcoded before a browser sees it.
var browserSafeCodecs = map[string]bool{
	"h264": true,
	"vp8":  true,
	"vp9":  true,
	"av1":  true,
}

var browserSafeContainers = map[string]bool{
	"mp4":  true,
	"webm": true,
	"ogg":  true,
}

// fallbackBitrates supplies per-height bitrates when the source bitrate is
// unknown (some containers omit it).
var fallbackBitrates = map[int]int64{
	240:  400_000,
	360:  800_000,
	480:  1_200_000,
	720:  2_500_000,
	1080: 5_000_000,
}

// Variant is one rung of the quality ladder.
type Variant struct {
	Height  int   `json:"height"`
	Width   int   `json:"width"`
	Bitrate int64 `json:"bitrate"`
}

// Decision is the outcome of planning a request.
type Decision struct {
	ServeOriginal bool        `json:"serveOriginal"`
	Target        Variant     `json:"target,omitempty"`
	Ladder        []Variant   `json:"ladder,omitempty"`
	Info          *probe.Info `json:"info"`
}

// Planner decides between serving the original file and transcoding.
type Planner struct {
	prober probe.Prober
}

// NewPlanner creates a planner over the given inspector.
func NewPlanner(prober probe.Prober) *Planner {
	return &Planner{prober: prober}
}

// Plan probes the source and decides how to serve it. container is the
// lowercased extension of the asset path (ffprobe cannot distinguish mkv
// from webm by format name alone). requestedQuality is a target height, 0
// for "as encoded". Requests for HLS never reach the planner; the handler
// routes those to the HLS preparer first.
func (p *Planner) Plan(ctx context.Context, filePath, container string, requestedQuality int) (*Decision, error) {
	info, err := p.prober.Probe(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", filePath, err)
	}

	// Audio-only assets are served as stored.
	if info.Codec == "" {
		return &Decision{ServeOriginal: true, Info: info}, nil
	}

	downscale := requestedQuality > 0 && requestedQuality < info.Height
	if browserSafeCodecs[info.Codec] && browserSafeContainers[container] && !downscale {
		return &Decision{ServeOriginal: true, Info: info}, nil
	}

	ladder := Ladder(info)
	return &Decision{
		Target: TargetVariant(ladder, requestedQuality),
		Ladder: ladder,
		Info:   info,
	}, nil
}

// Ladder computes the variant ladder for a source: the fixed candidate
// heights filtered to those at or below the source height, plus the source
// height itself. Bitrates scale with height so quality ordering is
// monotonic, and no variant ever upscales.
func Ladder(info *probe.Info) []Variant {
	heights := make([]int, 0, len(qualityHeights)+1)
	seen := make(map[int]bool)
	for _, h := range qualityHeights {
		if h <= info.Height && !seen[h] {
			heights = append(heights, h)
			seen[h] = true
		}
	}
	if info.Height > 0 && !seen[info.Height] {
		heights = append(heights, info.Height)
	}
	sort.Ints(heights)

	ladder := make([]Variant, 0, len(heights))
	for _, h := range heights {
		ladder = append(ladder, Variant{
			Height:  h,
			Width:   scaleWidth(info.Width, info.Height, h),
			Bitrate: variantBitrate(info, h),
		})
	}
	return ladder
}

// TargetVariant picks the ladder rung for a requested height: the largest
// variant not exceeding the request, or the top rung for 0 / out-of-range
// requests.
func TargetVariant(ladder []Variant, requestedHeight int) Variant {
	if len(ladder) == 0 {
		return Variant{}
	}
	if requestedHeight <= 0 {
		return ladder[len(ladder)-1]
	}
	chosen := ladder[0]
	for _, v := range ladder {
		if v.Height <= requestedHeight {
			chosen = v
		}
	}
	return chosen
}

func variantBitrate(info *probe.Info, height int) int64 {
	if info.Bitrate > 0 && info.Height > 0 {
		return info.Bitrate * int64(height) / int64(info.Height)
	}
	if b, ok := fallbackBitrates[height]; ok {
		return b
	}
	return fallbackBitrates[1080] * int64(height) / 1080
}

// scaleWidth keeps the source aspect ratio, rounded down to an even number
// as the encoder requires.
func scaleWidth(srcWidth, srcHeight, height int) int {
	if srcWidth <= 0 || srcHeight <= 0 {
		return 0
	}
	w := srcWidth * height / srcHeight
	return w &^ 1
}
