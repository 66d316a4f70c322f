// Package workers sizes worker pools from the CPUs available to the
// process. GOMAXPROCS already reflects container CPU limits, so sizing from
// it keeps encode concurrency honest under Kubernetes limits.
package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Count returns a worker count for a task type. The multiplier adjusts for
// task characteristics (1.0 CPU-bound, 2.0 I/O-bound) and limit caps the
// result (0 means no cap). TRANSCODE_WORKERS overrides everything.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv("TRANSCODE_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)
	count := int(float64(available) * multiplier)

	if count < 1 {
		count = 1
	}
	if limit > 0 && count > limit {
		count = limit
	}
	return count
}

// ForCPU returns a worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns a worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}
