package mcphost

import (
	"sync"
	"testing"
	"time"
)

func TestLatencyWindow_Empty(t *testing.T) {
	t.Parallel()
	w := newLatencyWindow(10)
	if w.Total() != 0 || w.Percentile(0.5) != 0 || w.ErrorRate() != 0 {
		t.Error("empty window should report zeros")
	}
}

func TestLatencyWindow_DefaultSize(t *testing.T) {
	t.Parallel()
	w := newLatencyWindow(0)
	if got := cap(w.samples); got != defaultWindowSize {
		t.Errorf("cap = %d, want %d", got, defaultWindowSize)
	}
}

func TestLatencyWindow_Percentiles(t *testing.T) {
	t.Parallel()
	w := newLatencyWindow(100)
	for i := 1; i <= 100; i++ {
		w.Record(time.Duration(i)*time.Millisecond, false)
	}

	tests := []struct {
		q    float64
		want time.Duration
	}{
		{0, 1 * time.Millisecond},
		{0.5, 50 * time.Millisecond},
		{0.99, 99 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := w.Percentile(tt.q); got != tt.want {
			t.Errorf("Percentile(%v) = %v, want %v", tt.q, got, tt.want)
		}
	}
}

func TestLatencyWindow_RingEvictsErrors(t *testing.T) {
	t.Parallel()
	w := newLatencyWindow(3)
	w.Record(100*time.Millisecond, true)
	w.Record(200*time.Millisecond, false)
	w.Record(300*time.Millisecond, false)
	if got := w.ErrorRate(); got < 0.33 || got > 0.34 {
		t.Errorf("ErrorRate = %v, want 1/3", got)
	}

	// Evicts the failed 100ms sample.
	w.Record(400*time.Millisecond, false)
	if got := w.ErrorRate(); got != 0 {
		t.Errorf("ErrorRate after eviction = %v, want 0", got)
	}
	if got := w.Percentile(0.5); got != 300*time.Millisecond {
		t.Errorf("median = %v, want 300ms", got)
	}
	if got := w.Total(); got != 4 {
		t.Errorf("Total = %d, want 4", got)
	}
}

func TestLatencyWindow_Concurrent(t *testing.T) {
	t.Parallel()
	w := newLatencyWindow(50)
	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 20 {
				w.Record(time.Duration(i*10)*time.Millisecond, j%3 == 0)
			}
		}()
	}
	wg.Wait()
	if got := w.Total(); got != 100 {
		t.Errorf("Total = %d, want 100", got)
	}
}
