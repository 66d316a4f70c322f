package hls

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-engine/internal/cache"
	"media-engine/internal/probe"
	"media-engine/internal/transcoder"
)

type fakeProber struct {
	info *probe.Info
	err  error
}

func (f *fakeProber) Probe(ctx context.Context, path string) (*probe.Info, error) {
	return f.info, f.err
}

type fakeSegmenter struct {
	calls   atomic.Int64
	failErr error
}

func (f *fakeSegmenter) Transcode(ctx context.Context, input string, spec transcoder.OutputSpec) error {
	return errors.New("not used")
}

func (f *fakeSegmenter) Segment(ctx context.Context, input string, spec transcoder.SegmentSpec) error {
	f.calls.Add(1)
	if f.failErr != nil {
		return f.failErr
	}
	if err := os.MkdirAll(spec.Dir, 0o755); err != nil {
		return err
	}
	playlist := fmt.Sprintf("#EXTM3U\n#EXT-X-TARGETDURATION:%d\n", spec.SegmentSeconds)
	return os.WriteFile(filepath.Join(spec.Dir, "playlist.m3u8"), []byte(playlist), 0o644)
}

func newTestPreparer(t *testing.T, enc transcoder.Encoder, info *probe.Info) *Preparer {
	t.Helper()
	store := cache.NewMemory(time.Minute)
	t.Cleanup(func() { store.Close() })
	return NewPreparer(store, enc, &fakeProber{info: info}, t.TempDir(), 6, 2)
}

func TestPrepareSingleJob(t *testing.T) {
	info := &probe.Info{Codec: "hevc", Width: 1280, Height: 720, Bitrate: 2_500_000}
	enc := &fakeSegmenter{}
	p := newTestPreparer(t, enc, info)
	ctx := context.Background()

	var started atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Prepare(ctx, "movies/a.mkv", "/media/movies/a.mkv")
			if err != nil {
				t.Errorf("Prepare: %v", err)
				return
			}
			if res.Status == StatusStarted {
				started.Add(1)
			}
		}()
	}
	wg.Wait()
	if started.Load() != 1 {
		t.Errorf("winners = %d, want exactly 1", started.Load())
	}
	p.Wait()

	// One Segment call per ladder rung: 240, 360, 480, 720.
	if enc.calls.Load() != 4 {
		t.Errorf("segment calls = %d, want 4", enc.calls.Load())
	}

	res, err := p.Prepare(ctx, "movies/a.mkv", "/media/movies/a.mkv")
	if err != nil {
		t.Fatalf("Prepare after completion: %v", err)
	}
	if res.Status != StatusReady {
		t.Fatalf("status = %q, want ready", res.Status)
	}

	data, err := os.ReadFile(res.Manifest)
	if err != nil {
		t.Fatalf("read master manifest: %v", err)
	}
	master := string(data)
	if !strings.HasPrefix(master, "#EXTM3U\n") {
		t.Errorf("master manifest missing header:\n%s", master)
	}
	for _, want := range []string{
		"RESOLUTION=1280x720",
		"v720/playlist.m3u8",
		"v240/playlist.m3u8",
		"#EXT-X-STREAM-INF:",
	} {
		if !strings.Contains(master, want) {
			t.Errorf("master manifest missing %q:\n%s", want, master)
		}
	}

	// The job resolves back to its source path for access checks.
	src, ok, err := p.SourcePath(ctx, res.JobID)
	if err != nil || !ok {
		t.Fatalf("SourcePath: ok=%v err=%v", ok, err)
	}
	if src != "movies/a.mkv" {
		t.Errorf("SourcePath = %q, want movies/a.mkv", src)
	}
}

func TestPrepareNoMasterUntilAllVariantsDone(t *testing.T) {
	info := &probe.Info{Codec: "hevc", Width: 1280, Height: 720, Bitrate: 2_500_000}
	enc := &fakeSegmenter{failErr: errors.New("variant encode failed")}
	p := newTestPreparer(t, enc, info)
	ctx := context.Background()

	res, err := p.Prepare(ctx, "movies/bad.mkv", "/media/movies/bad.mkv")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if res.Status != StatusStarted {
		t.Fatalf("status = %q, want started", res.Status)
	}
	p.Wait()

	if _, err := os.Stat(p.MasterPath(res.JobID)); !os.IsNotExist(err) {
		t.Errorf("master manifest exists after failed job (err=%v)", err)
	}

	res, err = p.Prepare(ctx, "movies/bad.mkv", "/media/movies/bad.mkv")
	if err != nil {
		t.Fatalf("Prepare after failure: %v", err)
	}
	if res.Status != StatusFailed {
		t.Errorf("status = %q, want failed", res.Status)
	}
}

func TestPrepareAudioOnlyFails(t *testing.T) {
	info := &probe.Info{Codec: "", HasAudio: true}
	p := newTestPreparer(t, &fakeSegmenter{}, info)
	ctx := context.Background()

	res, err := p.Prepare(ctx, "music/a.flac", "/media/music/a.flac")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if res.Status != StatusStarted {
		t.Fatalf("status = %q, want started", res.Status)
	}
	p.Wait()

	res, err = p.Prepare(ctx, "music/a.flac", "/media/music/a.flac")
	if err != nil {
		t.Fatalf("Prepare after failure: %v", err)
	}
	if res.Status != StatusFailed {
		t.Errorf("status = %q, want failed for audio-only source", res.Status)
	}
}

func TestJobIDStable(t *testing.T) {
	if JobID("movies/a.mkv") != JobID("movies/a.mkv") {
		t.Error("same path produced different job ids")
	}
	if JobID("movies/a.mkv") == JobID("movies/b.mkv") {
		t.Error("different paths produced the same job id")
	}
}

func TestMasterManifestRendering(t *testing.T) {
	ladder := []transcoder.Variant{
		{Height: 360, Width: 640, Bitrate: 800_000},
		{Height: 720, Width: 1280, Bitrate: 2_500_000},
	}
	got := string(masterManifest(ladder))
	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360\n" +
		"v360/playlist.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720\n" +
		"v720/playlist.m3u8\n"
	if got != want {
		t.Errorf("master manifest mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}
