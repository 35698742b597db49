package eta

import (
	"math"
	"testing"

	"github.com/promptpilot-hq/promptpilot/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestFormatDurationClock(t *testing.T) {
	tests := []struct {
		name     string
		ms       float64
		expected string
	}{
		{
			name:     "Zero",
			ms:       0,
			expected: "0:00",
		},
		{
			name:     "Sub-second rounds up",
			ms:       500,
			expected: "0:01",
		},
		{
			name:     "One second",
			ms:       1000,
			expected: "0:01",
		},
		{
			name:     "Fractional second rounds up",
			ms:       1001,
			expected: "0:02",
		},
		{
			name:     "One minute one second",
			ms:       61000,
			expected: "1:01",
		},
		{
			name:     "Just under an hour",
			ms:       3599000,
			expected: "59:59",
		},
		{
			name:     "One hour one minute one second",
			ms:       3661000,
			expected: "1:01:01",
		},
		{
			name:     "Negative clamps to zero",
			ms:       -5000,
			expected: "0:00",
		},
		{
			name:     "NaN clamps to zero",
			ms:       math.NaN(),
			expected: "0:00",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatDurationClock(tc.ms))
		})
	}
}

func TestEstimateRemainingQueueMs(t *testing.T) {
	tests := []struct {
		name       string
		snap       models.QueueTimingSnapshot
		expected   float64
		expectedOK bool
	}{
		{
			name: "Empty queue is a known zero",
			snap: models.QueueTimingSnapshot{
				PendingCount:    0,
				AvgGenerationMs: 5000,
			},
			expected:   0,
			expectedOK: true,
		},
		{
			name: "Unknown average makes the estimate unknown",
			snap: models.QueueTimingSnapshot{
				PendingCount:    3,
				AvgGenerationMs: 0,
			},
			expected:   0,
			expectedOK: false,
		},
		{
			name: "Negative average makes the estimate unknown",
			snap: models.QueueTimingSnapshot{
				PendingCount:    3,
				AvgGenerationMs: -100,
			},
			expected:   0,
			expectedOK: false,
		},
		{
			name: "NaN average makes the estimate unknown",
			snap: models.QueueTimingSnapshot{
				PendingCount:    3,
				AvgGenerationMs: math.NaN(),
			},
			expected:   0,
			expectedOK: false,
		},
		{
			name: "Sequential with cooldown and interval",
			snap: models.QueueTimingSnapshot{
				PendingCount:     3,
				CooldownRemainMs: 2000,
				AvgGenerationMs:  5000,
				MinIntervalMs:    1000,
				MaxConcurrent:    4,
			},
			// cooldown + 3*avg + 2*interval
			expected:   19000,
			expectedOK: true,
		},
		{
			name: "Single item sequential has no interval gap",
			snap: models.QueueTimingSnapshot{
				PendingCount:     1,
				CooldownRemainMs: 500,
				AvgGenerationMs:  4000,
				MinIntervalMs:    1000,
			},
			expected:   4500,
			expectedOK: true,
		},
		{
			name: "Concurrency of one is sequential even without interval",
			snap: models.QueueTimingSnapshot{
				PendingCount:     2,
				CooldownRemainMs: 1000,
				AvgGenerationMs:  3000,
				MaxConcurrent:    1,
			},
			expected:   7000,
			expectedOK: true,
		},
		{
			name: "Concurrent waves",
			snap: models.QueueTimingSnapshot{
				PendingCount:    5,
				AvgGenerationMs: 4000,
				MaxConcurrent:   2,
			},
			// ceil(5/2) = 3 waves
			expected:   12000,
			expectedOK: true,
		},
		{
			name: "Concurrent regime ignores cooldown",
			snap: models.QueueTimingSnapshot{
				PendingCount:     4,
				CooldownRemainMs: 9000,
				AvgGenerationMs:  4000,
				MaxConcurrent:    4,
			},
			expected:   4000,
			expectedOK: true,
		},
		{
			name: "Negative cooldown clamps to zero",
			snap: models.QueueTimingSnapshot{
				PendingCount:     2,
				CooldownRemainMs: -500,
				AvgGenerationMs:  1000,
				MinIntervalMs:    100,
			},
			expected:   2100,
			expectedOK: true,
		},
		{
			name: "Negative pending treated as empty",
			snap: models.QueueTimingSnapshot{
				PendingCount:    -2,
				AvgGenerationMs: 1000,
			},
			expected:   0,
			expectedOK: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := EstimateRemainingQueueMs(tc.snap)
			assert.Equal(t, tc.expectedOK, ok)
			assert.InDelta(t, tc.expected, got, 0.001)
		})
	}
}
