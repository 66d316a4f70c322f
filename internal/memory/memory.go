// Package memory configures Go's runtime memory limit for containerized
// deployments and watches heap usage against it.
//
// Go detects GOMAXPROCS from cgroup CPU limits automatically, but GOMEMLIMIT
// must be set explicitly or the runtime will happily grow past a container
// memory limit and get OOM-killed. ConfigureFromEnv derives GOMEMLIMIT from
// the container limit (typically injected via the Kubernetes Downward API),
// reserving headroom for FFmpeg subprocesses, CGO allocations in libvips,
// and goroutine stacks.
//
// Environment variables:
//
//   - GOMEMLIMIT: standard Go variable, takes precedence when set
//   - MEMORY_LIMIT: container memory limit in bytes
//   - MEMORY_RATIO: fraction of MEMORY_LIMIT for the Go heap (default 0.75)
package memory

import (
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"media-engine/internal/logging"
	"media-engine/internal/metrics"
)

// DefaultMemoryRatio is the fraction of the container limit given to the Go
// heap. The engine shells out to ffmpeg and decodes images through libvips,
// both of which allocate outside the Go heap, so the reserve is generous.
const DefaultMemoryRatio = 0.75

// ConfigResult reports how the memory limit was configured.
type ConfigResult struct {
	Configured     bool
	Source         string // "GOMEMLIMIT", "MEMORY_LIMIT", or "none"
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ConfigureFromEnv sets GOMEMLIMIT from the environment. Call it early in
// main, before significant allocations.
func ConfigureFromEnv() ConfigResult {
	result := ConfigResult{}

	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.Source = "GOMEMLIMIT"
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	memLimitStr := os.Getenv("MEMORY_LIMIT")
	if memLimitStr == "" {
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT left unconfigured")
		result.Source = "none"
		return result
	}

	memLimit, err := strconv.ParseInt(memLimitStr, 10, 64)
	if err != nil || memLimit <= 0 {
		logging.Warn("Ignoring unparseable MEMORY_LIMIT %q", memLimitStr)
		result.Source = "none"
		return result
	}
	result.ContainerLimit = memLimit

	ratio := DefaultMemoryRatio
	if ratioStr := os.Getenv("MEMORY_RATIO"); ratioStr != "" {
		parsed, err := strconv.ParseFloat(ratioStr, 64)
		if err == nil && parsed > 0 && parsed <= 1.0 {
			ratio = parsed
		} else {
			logging.Warn("MEMORY_RATIO %q out of range (0.0-1.0], using default %.2f", ratioStr, DefaultMemoryRatio)
		}
	}
	result.Ratio = ratio

	goMemLimit := int64(float64(memLimit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	result.Configured = true
	result.Source = "MEMORY_LIMIT"
	result.GoMemLimit = goMemLimit

	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
		formatBytes(goMemLimit), ratio*100, formatBytes(memLimit))
	return result
}

// Monitor samples heap usage against the configured limit and exports the
// ratio. Pressure reports whether usage crossed the high water mark so
// callers can shed optional work.
type Monitor struct {
	limit         int64
	highWaterMark float64
	checkInterval time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once

	mu       sync.RWMutex
	current  uint64
	pressure bool
}

// NewMonitor creates a monitor against the current GOMEMLIMIT. With no limit
// configured the monitor is inert.
func NewMonitor() *Monitor {
	var limit int64
	if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < 1<<62 {
		limit = goMemLimit
	}
	if limit == 0 {
		logging.Warn("Memory monitor: no memory limit configured, pressure reporting disabled")
	}
	return &Monitor{
		limit:         limit,
		highWaterMark: 0.85,
		checkInterval: 5 * time.Second,
		stopChan:      make(chan struct{}),
	}
}

// Start begins sampling in the background. No-op without a limit.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go m.loop()
}

// Stop halts sampling. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// Pressure reports whether heap usage exceeded the high water mark at the
// last sample.
func (m *Monitor) Pressure() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pressure
}

// Usage returns heap bytes in use at the last sample.
func (m *Monitor) Usage() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sample()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) sample() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	usage := float64(stats.Alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	m.current = stats.Alloc
	was := m.pressure
	m.pressure = usage >= m.highWaterMark
	now := m.pressure
	m.mu.Unlock()

	if now && !was {
		logging.Warn("Memory pressure: heap at %.1f%% of limit (%s of %s)",
			usage*100, formatBytes(int64(stats.Alloc)), formatBytes(m.limit))
		metrics.MemoryPressure.Set(1)
	} else if !now && was {
		logging.Info("Memory pressure cleared: heap at %.1f%% of limit", usage*100)
		metrics.MemoryPressure.Set(0)
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
