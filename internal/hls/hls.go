// Package hls prepares adaptive segment sets for browser playback.
//
// A preparation job covers the whole ladder for one source file. Variants
// encode in parallel, but the master manifest is only written after every
// variant finished, so a published job is always complete. Players that
// fetch the master playlist before preparation finishes get a not-ready
// answer, never a partial ladder.
package hls

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"media-engine/internal/cache"
	"media-engine/internal/filesystem"
	"media-engine/internal/logging"
	"media-engine/internal/metrics"
	"media-engine/internal/probe"
	"media-engine/internal/transcoder"
)

const (
	claimPrefix  = "hls:claim:"
	readyPrefix  = "hls:ready:"
	failedPrefix = "hls:failed:"
	pathPrefix   = "hls:path:"

	// DefaultSegmentSeconds is the target segment duration.
	DefaultSegmentSeconds = 6

	// DefaultClaimTTL bounds a stuck preparation. Whole-ladder jobs run
	// longer than single renditions.
	DefaultClaimTTL = 30 * time.Minute

	// DefaultFailTTL is how long a failed job suppresses retries.
	DefaultFailTTL = 5 * time.Minute

	// DefaultETASeconds is the hint returned while a job is underway.
	DefaultETASeconds = 120
)

// Status reports where a preparation job stands.
type Status string

const (
	StatusReady     Status = "ready"
	StatusStarted   Status = "started"
	StatusPreparing Status = "preparing"
	StatusFailed    Status = "failed"
)

// Result is the outcome of a preparation request.
type Result struct {
	Status     Status
	JobID      string
	Manifest   string
	ETASeconds int
}

// JobID derives the stable identity of a preparation job. It depends on
// the logical path alone: the ladder always covers every quality, so there
// is nothing else to key on.
func JobID(path string) string {
	sum := sha1.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

// Preparer runs whole-ladder segmentation jobs.
type Preparer struct {
	cache          cache.Store
	encoder        transcoder.Encoder
	prober         probe.Prober
	cacheDir       string
	segmentSeconds int
	claimTTL       time.Duration
	failTTL        time.Duration

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPreparer returns a preparer writing jobs under cacheDir and running
// at most maxJobs preparations at once.
func NewPreparer(store cache.Store, encoder transcoder.Encoder, prober probe.Prober, cacheDir string, segmentSeconds, maxJobs int) *Preparer {
	if segmentSeconds < 1 {
		segmentSeconds = DefaultSegmentSeconds
	}
	if maxJobs < 1 {
		maxJobs = 1
	}
	return &Preparer{
		cache:          store,
		encoder:        encoder,
		prober:         prober,
		cacheDir:       cacheDir,
		segmentSeconds: segmentSeconds,
		claimTTL:       DefaultClaimTTL,
		failTTL:        DefaultFailTTL,
		sem:            make(chan struct{}, maxJobs),
	}
}

// SetClaimTTL overrides the claim lifetime. Must be called before the
// first Prepare.
func (p *Preparer) SetClaimTTL(ttl time.Duration) {
	if ttl > 0 {
		p.claimTTL = ttl
	}
}

// Dir is the on-disk root of one job's manifests and segments.
func (p *Preparer) Dir(jobID string) string {
	return filepath.Join(p.cacheDir, "hls", jobID)
}

// MasterPath is where a finished job's master manifest lands.
func (p *Preparer) MasterPath(jobID string) string {
	return filepath.Join(p.Dir(jobID), "master.m3u8")
}

// SourcePath resolves a job back to the logical path it was prepared
// from, so segment fetches can be access-checked against the source.
func (p *Preparer) SourcePath(ctx context.Context, jobID string) (string, bool, error) {
	return p.cache.Get(ctx, pathPrefix+jobID)
}

// Prepare asks for the full ladder of path. If the master manifest already
// exists it is returned immediately. Otherwise exactly one caller wins the
// claim and starts a background job; everyone else learns it is underway.
func (p *Preparer) Prepare(ctx context.Context, path, filePath string) (Result, error) {
	jobID := JobID(path)
	master := p.MasterPath(jobID)

	ready, err := p.isReady(ctx, jobID, path, master)
	if err != nil {
		return Result{}, err
	}
	if ready {
		return Result{Status: StatusReady, JobID: jobID, Manifest: master}, nil
	}

	if _, ok, err := p.cache.Get(ctx, failedPrefix+jobID); err != nil {
		return Result{}, err
	} else if ok {
		return Result{Status: StatusFailed, JobID: jobID}, nil
	}

	won, err := p.cache.SetNX(ctx, claimPrefix+jobID, "1", p.claimTTL)
	if err != nil {
		return Result{}, err
	}
	if !won {
		return Result{Status: StatusPreparing, JobID: jobID, ETASeconds: DefaultETASeconds}, nil
	}

	p.wg.Add(1)
	go p.prepare(jobID, path, filePath)

	return Result{Status: StatusStarted, JobID: jobID, ETASeconds: DefaultETASeconds}, nil
}

func (p *Preparer) isReady(ctx context.Context, jobID, path, master string) (bool, error) {
	if _, ok, err := p.cache.Get(ctx, readyPrefix+jobID); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	if _, err := os.Stat(master); err == nil {
		p.publish(ctx, jobID, path, master)
		return true, nil
	}
	return false, nil
}

func (p *Preparer) publish(ctx context.Context, jobID, path, master string) {
	if err := p.cache.Set(ctx, readyPrefix+jobID, master, 0); err != nil {
		logging.Warn("failed to record ready flag for hls job %s: %v", jobID, err)
	}
	if err := p.cache.Set(ctx, pathPrefix+jobID, path, 0); err != nil {
		logging.Warn("failed to record path mapping for hls job %s: %v", jobID, err)
	}
}

// prepare runs detached from the request that started it. Variants encode
// in parallel; the master manifest is written only once all of them
// succeeded, so a crash mid-job leaves nothing published.
func (p *Preparer) prepare(jobID, path, filePath string) {
	defer p.wg.Done()
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	ctx := context.Background()
	metrics.TranscodeJobsRunning.Inc()
	defer metrics.TranscodeJobsRunning.Dec()
	start := time.Now()

	err := p.run(ctx, jobID, filePath)
	metrics.TranscodeDuration.WithLabelValues("hls").Observe(time.Since(start).Seconds())

	if err != nil {
		logging.Error("hls preparation failed for %s: %v", path, err)
		metrics.TranscodeJobsTotal.WithLabelValues("hls", "failure").Inc()
		if setErr := p.cache.Set(ctx, failedPrefix+jobID, err.Error(), p.failTTL); setErr != nil {
			logging.Warn("failed to record failure flag for hls job %s: %v", jobID, setErr)
		}
		p.release(ctx, jobID)
		return
	}

	logging.Info("hls preparation finished for %s in %s", path, time.Since(start).Round(time.Millisecond))
	metrics.TranscodeJobsTotal.WithLabelValues("hls", "success").Inc()
	p.publish(ctx, jobID, path, p.MasterPath(jobID))
	p.release(ctx, jobID)
}

func (p *Preparer) run(ctx context.Context, jobID, filePath string) error {
	info, err := p.prober.Probe(ctx, filePath)
	if err != nil {
		return fmt.Errorf("probe %s: %w", filePath, err)
	}
	if info.Codec == "" {
		return fmt.Errorf("probe %s: %w", filePath, probe.ErrUnsupported)
	}

	ladder := transcoder.Ladder(info)
	dir := p.Dir(jobID)

	g, gctx := errgroup.WithContext(ctx)
	for _, v := range ladder {
		variant := v
		g.Go(func() error {
			return p.encoder.Segment(gctx, filePath, transcoder.SegmentSpec{
				Dir:            filepath.Join(dir, variantDir(variant)),
				Variant:        variant,
				SegmentSeconds: p.segmentSeconds,
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Publishing the master manifest is the commit point of the job.
	if _, err := filesystem.WriteAtomic(p.MasterPath(jobID), bytes.NewReader(masterManifest(ladder))); err != nil {
		return fmt.Errorf("write master manifest: %w", err)
	}
	return nil
}

func (p *Preparer) release(ctx context.Context, jobID string) {
	if err := p.cache.Delete(ctx, claimPrefix+jobID); err != nil {
		logging.Warn("failed to release claim for hls job %s: %v", jobID, err)
	}
}

// Wait blocks until every in-flight job finished. Used during shutdown.
func (p *Preparer) Wait() {
	p.wg.Wait()
}

func variantDir(v transcoder.Variant) string {
	return fmt.Sprintf("v%d", v.Height)
}

// masterManifest renders the master playlist referencing each variant's
// child playlist by relative path.
func masterManifest(ladder []transcoder.Variant) []byte {
	var b bytes.Buffer
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, v := range ladder {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", v.Bitrate, v.Width, v.Height)
		fmt.Fprintf(&b, "%s/playlist.m3u8\n", variantDir(v))
	}
	return b.Bytes()
}
