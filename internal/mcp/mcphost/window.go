package mcphost

import (
	"slices"
	"sync"
	"time"
)

// defaultWindowSize is the number of recent calls kept per tool.
const defaultWindowSize = 100

type sample struct {
	latency time.Duration
	failed  bool
}

// latencyWindow keeps the most recent tool calls in a ring buffer for
// percentile and error-rate reporting. Safe for concurrent use.
type latencyWindow struct {
	mu      sync.Mutex
	samples []sample
	next    int
	total   int
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = defaultWindowSize
	}
	return &latencyWindow{samples: make([]sample, 0, size)}
}

// Record adds one call, overwriting the oldest once the window is full.
func (w *latencyWindow) Record(latency time.Duration, failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := sample{latency: latency, failed: failed}
	if len(w.samples) < cap(w.samples) {
		w.samples = append(w.samples, s)
	} else {
		w.samples[w.next] = s
	}
	w.next = (w.next + 1) % cap(w.samples)
	w.total++
}

// Percentile returns the latency at quantile q in [0,1] over the window, or 0
// with no samples. Nearest-rank on the sorted window.
func (w *latencyWindow) Percentile(q float64) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(w.samples))
	for i, s := range w.samples {
		sorted[i] = s.latency
	}
	slices.Sort(sorted)
	q = min(max(q, 0), 1)
	return sorted[int(float64(len(sorted)-1)*q)]
}

// ErrorRate returns the failed fraction of calls in the window.
func (w *latencyWindow) ErrorRate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return 0
	}
	failed := 0
	for _, s := range w.samples {
		if s.failed {
			failed++
		}
	}
	return float64(failed) / float64(len(w.samples))
}

// Total returns the number of calls ever recorded, including evicted ones.
func (w *latencyWindow) Total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}
