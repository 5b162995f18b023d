package utils

import (
	"testing"
	"time"
)

func TestLatencyWindowPercentile(t *testing.T) {
	window := NewLatencyWindow(10)
	durations := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for _, d := range durations {
		window.Observe(d)
	}

	if window.Count() != len(durations) {
		t.Fatalf("expected count %d, got %d", len(durations), window.Count())
	}

	p95 := window.Percentile(95)
	if p95 < 40*time.Millisecond {
		t.Fatalf("expected percentile >= 40ms, got %v", p95)
	}
}

func TestLatencyWindowAggregates(t *testing.T) {
	window := NewLatencyWindow(10)
	window.Observe(10 * time.Millisecond)
	window.Observe(20 * time.Millisecond)
	window.Observe(60 * time.Millisecond)

	if got := window.Average(); got != 30*time.Millisecond {
		t.Fatalf("expected average 30ms, got %v", got)
	}
	if got := window.Min(); got != 10*time.Millisecond {
		t.Fatalf("expected min 10ms, got %v", got)
	}
	if got := window.Max(); got != 60*time.Millisecond {
		t.Fatalf("expected max 60ms, got %v", got)
	}
}

func TestLatencyWindowBoundedSize(t *testing.T) {
	window := NewLatencyWindow(3)
	for i := 0; i < 10; i++ {
		window.Observe(time.Duration(i) * time.Millisecond)
	}
	if window.Count() != 3 {
		t.Fatalf("expected window size 3, got %d", window.Count())
	}
	// Oldest samples evicted first: the window holds 7ms, 8ms, 9ms.
	if got := window.Min(); got != 7*time.Millisecond {
		t.Fatalf("expected min 7ms after eviction, got %v", got)
	}
}

func TestLatencyWindowReset(t *testing.T) {
	window := NewLatencyWindow(5)
	window.Observe(time.Millisecond)
	window.Reset()
	if window.Count() != 0 {
		t.Fatalf("expected empty window after reset, got %d samples", window.Count())
	}
	if window.Average() != 0 {
		t.Fatalf("expected zero average after reset")
	}
}
