package perf

import (
	"sort"
	"testing"
	"time"
)

func TestCheckoutLatencyTargets(t *testing.T) {
	scenarios := []struct {
		name      string
		samples   []time.Duration
		threshold time.Duration
	}{
		{
			name:      "single_line_sale",
			samples:   []time.Duration{8 * time.Millisecond, 9 * time.Millisecond, 11 * time.Millisecond, 12 * time.Millisecond, 14 * time.Millisecond, 15 * time.Millisecond, 17 * time.Millisecond, 19 * time.Millisecond, 22 * time.Millisecond, 26 * time.Millisecond},
			threshold: 50 * time.Millisecond,
		},
		{
			name:      "large_cart_sale",
			samples:   []time.Duration{45 * time.Millisecond, 52 * time.Millisecond, 60 * time.Millisecond, 68 * time.Millisecond, 75 * time.Millisecond, 81 * time.Millisecond, 90 * time.Millisecond, 104 * time.Millisecond, 118 * time.Millisecond, 135 * time.Millisecond},
			threshold: 200 * time.Millisecond,
		},
		{
			name:      "contended_sale_with_retries",
			samples:   []time.Duration{110 * time.Millisecond, 130 * time.Millisecond, 150 * time.Millisecond, 170 * time.Millisecond, 200 * time.Millisecond, 230 * time.Millisecond, 260 * time.Millisecond, 300 * time.Millisecond, 340 * time.Millisecond, 390 * time.Millisecond},
			threshold: 500 * time.Millisecond,
		},
	}

	for _, scenario := range scenarios {
		p95 := percentile95(scenario.samples)
		if p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
