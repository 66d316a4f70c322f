package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"media-engine/internal/access"
	"media-engine/internal/cache"
	"media-engine/internal/database"
	"media-engine/internal/hls"
	"media-engine/internal/probe"
	"media-engine/internal/share"
	"media-engine/internal/startup"
	"media-engine/internal/thumbnail"
	"media-engine/internal/transcoder"
)

// stubProber lets individual tests swap the probe result.
type stubProber struct {
	info *probe.Info
	err  error
}

func (s *stubProber) Probe(ctx context.Context, path string) (*probe.Info, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.info, nil
}

// stubEncoder records the input given to it so tests can check what a
// real ffmpeg invocation would have read.
type stubEncoder struct {
	lastInput atomic.Value
}

func (s *stubEncoder) Transcode(ctx context.Context, input string, spec transcoder.OutputSpec) error {
	s.lastInput.Store(input)
	if err := os.MkdirAll(filepath.Dir(spec.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(spec.Path, []byte("rendition"), 0o644)
}

func (s *stubEncoder) Segment(ctx context.Context, input string, spec transcoder.SegmentSpec) error {
	s.lastInput.Store(input)
	if err := os.MkdirAll(spec.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(spec.Dir, "playlist.m3u8"), []byte("#EXTM3U\n"), 0o644)
}

type testEnv struct {
	handlers    *Handlers
	router      *mux.Router
	db          *database.Database
	prober      *stubProber
	encoder     *stubEncoder
	coordinator *transcoder.Coordinator
	preparer    *hls.Preparer
	mediaDir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := cache.NewMemory(time.Minute)
	t.Cleanup(func() { store.Close() })

	mediaDir := t.TempDir()
	cacheDir := t.TempDir()
	prober := &stubProber{info: &probe.Info{Codec: "h264", Width: 1280, Height: 720, Duration: 60, Bitrate: 2_000_000, HasAudio: true}}

	config := &startup.Config{
		MediaDir:       mediaDir,
		CacheDir:       cacheDir,
		MaxChunkBytes:  1 << 20,
		SegmentSeconds: 6,
	}

	enc := &stubEncoder{}
	coordinator := transcoder.NewCoordinator(store, enc, cacheDir, 2)
	preparer := hls.NewPreparer(store, enc, prober, cacheDir, 6, 2)
	h := New(
		db,
		store,
		access.NewResolver(db, false),
		share.NewIssuer(db),
		transcoder.NewPlanner(prober),
		coordinator,
		preparer,
		thumbnail.NewGenerator(cacheDir, prober),
		config,
	)

	router := mux.NewRouter()
	router.HandleFunc("/media/stream/{path:.*}", h.StreamMedia).Methods(http.MethodGet)
	router.HandleFunc("/media/info/{path:.*}", h.MediaInfo).Methods(http.MethodGet)
	router.HandleFunc("/media/thumbnail/{path:.*}", h.ThumbnailMedia).Methods(http.MethodGet)
	router.HandleFunc("/media/hls/{jobId}/{file:.*}", h.ServeHLS).Methods(http.MethodGet)
	router.HandleFunc("/files/share", h.CreateShare).Methods(http.MethodPost)
	router.HandleFunc("/shared/{token}", h.GetShared).Methods(http.MethodGet)
	router.HandleFunc("/shared/{token}", h.RevokeShare).Methods(http.MethodDelete)
	router.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	router.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	return &testEnv{
		handlers:    h,
		router:      router,
		db:          db,
		prober:      prober,
		encoder:     enc,
		coordinator: coordinator,
		preparer:    preparer,
		mediaDir:    mediaDir,
	}
}

// grantRead gives the user read (and optionally share) on a path.
func (e *testEnv) grant(t *testing.T, userID, path string, recursive, canShare bool) {
	t.Helper()
	err := e.db.CreateGrant(context.Background(), access.Grant{
		Kind:      access.SubjectUser,
		SubjectID: userID,
		Path:      path,
		Read:      true,
		Share:     canShare,
		Recursive: recursive,
	})
	if err != nil {
		t.Fatalf("CreateGrant: %v", err)
	}
}

func (e *testEnv) writeMedia(t *testing.T, rel string, data []byte) string {
	t.Helper()
	full := filepath.Join(e.mediaDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return full
}

func (e *testEnv) do(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, r)
	return rec
}

func asUser(r *http.Request, userID string) *http.Request {
	r.Header.Set(headerPrincipalID, userID)
	return r
}

func asAdmin(r *http.Request) *http.Request {
	r.Header.Set(headerPrincipalAdmin, "true")
	return r
}
