package budget

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"

	"media-batch-converter/internal/domain"
)

// Bounds for the number of simultaneously running encoder jobs. The cap
// is on jobs, independent of the per-job thread request, so several
// video encodes cannot oversubscribe the host together.
const (
	minConcurrentJobs = 2
	maxConcurrentJobs = 8
)

// ThreadsFor returns the encoder thread count requested for one job of
// the given kind. Video claims the largest share because it is
// CPU-bound and sensitive to single-job wall time; audio stays minimal
// so more jobs can run side by side.
func ThreadsFor(kind domain.MediaKind, totalCores int) int {
	switch kind {
	case domain.MediaKindVideo:
		return atLeast(3, totalCores*75/100)
	case domain.MediaKindImage:
		return atLeast(2, totalCores*50/100)
	default:
		return atLeast(2, totalCores*35/100)
	}
}

// MaxConcurrent returns the global job cap for a host with totalCores
// logical cores: floor(cores / 2.5), clamped to [2, 8].
func MaxConcurrent(totalCores int) int {
	jobs := totalCores * 2 / 5
	if jobs < minConcurrentJobs {
		return minConcurrentJobs
	}
	if jobs > maxConcurrentJobs {
		return maxConcurrentJobs
	}
	return jobs
}

// CoreCount reports the host's logical core count. It prefers the
// gopsutil probe and falls back to the Go runtime when the probe fails.
func CoreCount() int {
	count, err := cpu.Counts(true)
	if err != nil || count < 1 {
		return runtime.NumCPU()
	}
	return count
}

func atLeast(minimum, value int) int {
	if value < minimum {
		return minimum
	}
	return value
}
