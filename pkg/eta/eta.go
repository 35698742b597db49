// Package eta estimates remaining completion time for the downstream image
// generation queue and formats durations for display. All functions are pure;
// callers pass a fresh QueueTimingSnapshot per estimate.
package eta

import (
	"fmt"
	"math"

	"github.com/promptpilot-hq/promptpilot/pkg/models"
)

// FormatDurationClock renders a millisecond duration as H:MM:SS when at least
// one hour, M:SS otherwise. Negative input clamps to zero; fractional seconds
// round up, so any non-zero duration shows at least one second.
func FormatDurationClock(ms float64) string {
	if ms < 0 || math.IsNaN(ms) {
		ms = 0
	}

	totalSeconds := int64(math.Ceil(ms / 1000))
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// EstimateRemainingQueueMs estimates the remaining queue completion time in
// milliseconds. The second return value is false when no estimate is possible
// (average generation duration absent or invalid); it is never false with a
// usable average, and the estimate is never zero-by-accident in that case.
//
// With a positive minimum interval, or a concurrency degree of at most one,
// items run sequentially: cooldown + n*avg + (n-1)*interval, gaps only between
// consecutive items. Otherwise items dispatch in waves sized to the
// concurrency degree and the estimate is ceil(n/degree)*avg; cooldown is
// deliberately omitted in that regime.
func EstimateRemainingQueueMs(snap models.QueueTimingSnapshot) (float64, bool) {
	pending := snap.PendingCount
	if pending < 0 {
		pending = 0
	}
	if pending == 0 {
		return 0, true
	}

	avg := snap.AvgGenerationMs
	if math.IsNaN(avg) || math.IsInf(avg, 0) || avg <= 0 {
		return 0, false
	}

	cooldown := clampMs(snap.CooldownRemainMs)
	interval := clampMs(snap.MinIntervalMs)

	concurrent := snap.MaxConcurrent
	if concurrent < 1 {
		concurrent = 1
	}

	if interval > 0 || concurrent <= 1 {
		return cooldown + float64(pending)*avg + float64(pending-1)*interval, true
	}

	waves := math.Ceil(float64(pending) / float64(concurrent))
	return waves * avg, true
}

func clampMs(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Floor(v)
}
