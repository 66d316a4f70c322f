package transcoder

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"media-engine/internal/cache"
	"media-engine/internal/logging"
	"media-engine/internal/metrics"
)

const (
	claimPrefix  = "transcode:claim:"
	readyPrefix  = "transcode:ready:"
	failedPrefix = "transcode:failed:"

	// DefaultClaimTTL bounds a stuck worker's claim. A crashed encoder's
	// claim expires and the next request starts a fresh job.
	DefaultClaimTTL = 10 * time.Minute

	// DefaultFailTTL is how long a failed job suppresses retries.
	DefaultFailTTL = 5 * time.Minute

	// DefaultETASeconds is the hint returned with an in-progress response.
	DefaultETASeconds = 60
)

// JobStatus reports where a rendition job stands.
type JobStatus string

const (
	StatusReady     JobStatus = "ready"
	StatusStarted   JobStatus = "started"
	StatusPreparing JobStatus = "preparing"
	StatusFailed    JobStatus = "failed"
)

// Result is the outcome of a rendition request.
type Result struct {
	Status     JobStatus
	Location   string
	ETASeconds int
}

// JobKey derives the stable identity for one (source, quality, format)
// rendition. Concurrent requests for the same triple share the key and so
// share the job.
func JobKey(path string, height int, format string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%s", path, height, format)))
	return hex.EncodeToString(sum[:])
}

// Coordinator serializes rendition jobs so at most one encoder runs per
// job key across every frontend sharing the cache backend.
type Coordinator struct {
	cache    cache.Store
	encoder  Encoder
	cacheDir string
	claimTTL time.Duration
	failTTL  time.Duration

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewCoordinator returns a coordinator writing renditions under cacheDir
// and running at most maxWorkers encoders at once.
func NewCoordinator(store cache.Store, encoder Encoder, cacheDir string, maxWorkers int) *Coordinator {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Coordinator{
		cache:    store,
		encoder:  encoder,
		cacheDir: cacheDir,
		claimTTL: DefaultClaimTTL,
		failTTL:  DefaultFailTTL,
		sem:      make(chan struct{}, maxWorkers),
	}
}

// SetClaimTTL overrides the claim lifetime. Must be called before the
// first Request.
func (c *Coordinator) SetClaimTTL(ttl time.Duration) {
	if ttl > 0 {
		c.claimTTL = ttl
	}
}

// OutputPath is where a finished rendition lands on disk.
func (c *Coordinator) OutputPath(key string) string {
	return filepath.Join(c.cacheDir, "renditions", key+".mp4")
}

// Request asks for a rendition of the asset at filePath scaled to variant.
// The job is keyed by the logical path so replicas with different media
// roots still share it. If the output already exists it is returned
// immediately. Otherwise exactly one caller wins the claim and starts a
// background encode; everyone else learns the job is already underway.
func (c *Coordinator) Request(ctx context.Context, path, filePath string, variant Variant, format string) (Result, error) {
	key := JobKey(path, variant.Height, format)
	out := c.OutputPath(key)

	ready, err := c.isReady(ctx, key, out)
	if err != nil {
		return Result{}, err
	}
	if ready {
		return Result{Status: StatusReady, Location: out}, nil
	}

	if _, ok, err := c.cache.Get(ctx, failedPrefix+key); err != nil {
		return Result{}, err
	} else if ok {
		return Result{Status: StatusFailed}, nil
	}

	won, err := c.cache.SetNX(ctx, claimPrefix+key, "1", c.claimTTL)
	if err != nil {
		return Result{}, err
	}
	if !won {
		return Result{Status: StatusPreparing, ETASeconds: DefaultETASeconds}, nil
	}

	c.wg.Add(1)
	go c.encode(key, path, filePath, out, variant)

	return Result{Status: StatusStarted, ETASeconds: DefaultETASeconds}, nil
}

// isReady checks the ready flag first and falls back to a disk stat so a
// flushed cache rediscovers existing renditions instead of re-encoding.
func (c *Coordinator) isReady(ctx context.Context, key, out string) (bool, error) {
	if _, ok, err := c.cache.Get(ctx, readyPrefix+key); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	if _, err := os.Stat(out); err == nil {
		if err := c.cache.Set(ctx, readyPrefix+key, out, 0); err != nil {
			logging.Warn("failed to restore ready flag for %s: %v", key, err)
		}
		return true, nil
	}
	return false, nil
}

// encode runs detached from the request that started it: a client that
// gives up on the response must not cancel work other clients share.
func (c *Coordinator) encode(key, path, filePath, out string, variant Variant) {
	defer c.wg.Done()
	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	ctx := context.Background()
	metrics.TranscodeJobsRunning.Inc()
	defer metrics.TranscodeJobsRunning.Dec()
	start := time.Now()

	err := c.encoder.Transcode(ctx, filePath, OutputSpec{
		Path:    out,
		Height:  variant.Height,
		Bitrate: variant.Bitrate,
	})
	metrics.TranscodeDuration.WithLabelValues("rendition").Observe(time.Since(start).Seconds())

	if err != nil {
		logging.Error("transcode failed for %s (%dp): %v", path, variant.Height, err)
		metrics.TranscodeJobsTotal.WithLabelValues("rendition", "failure").Inc()
		if setErr := c.cache.Set(ctx, failedPrefix+key, err.Error(), c.failTTL); setErr != nil {
			logging.Warn("failed to record failure flag for %s: %v", key, setErr)
		}
		c.release(ctx, key)
		return
	}

	logging.Info("transcode finished for %s (%dp) in %s", path, variant.Height, time.Since(start).Round(time.Millisecond))
	metrics.TranscodeJobsTotal.WithLabelValues("rendition", "success").Inc()
	if setErr := c.cache.Set(ctx, readyPrefix+key, out, 0); setErr != nil {
		logging.Warn("failed to record ready flag for %s: %v", key, setErr)
	}
	c.release(ctx, key)
}

func (c *Coordinator) release(ctx context.Context, key string) {
	if err := c.cache.Delete(ctx, claimPrefix+key); err != nil {
		logging.Warn("failed to release claim for %s: %v", key, err)
	}
}

// Wait blocks until every in-flight job finished. Used during shutdown.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
