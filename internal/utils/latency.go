package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyWindow stores a bounded FIFO window of recent duration samples and
// computes aggregate statistics over it. Oldest samples are evicted on
// overflow.
type LatencyWindow struct {
	mu      sync.RWMutex
	samples []time.Duration
	maxSize int
}

// NewLatencyWindow creates a window holding up to maxSize samples.
func NewLatencyWindow(maxSize int) *LatencyWindow {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &LatencyWindow{maxSize: maxSize}
}

// Observe records a new duration, evicting the oldest sample when full.
func (l *LatencyWindow) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples = append(l.samples, d)
	if len(l.samples) > l.maxSize {
		copy(l.samples[0:], l.samples[1:])
		l.samples = l.samples[:l.maxSize]
	}
}

// Average returns the mean duration over the window. Zero if empty.
func (l *LatencyWindow) Average() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range l.samples {
		total += s
	}
	return total / time.Duration(len(l.samples))
}

// Min returns the smallest duration in the window. Zero if empty.
func (l *LatencyWindow) Min() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.minLocked()
}

// Max returns the largest duration in the window. Zero if empty.
func (l *LatencyWindow) Max() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.maxLocked()
}

// Percentile returns the percentile (0-100) duration. Zero if empty.
func (l *LatencyWindow) Percentile(p float64) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.samples) == 0 {
		return 0
	}
	if p <= 0 {
		return l.minLocked()
	}
	if p >= 100 {
		return l.maxLocked()
	}

	sorted := append([]time.Duration(nil), l.samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := int((p / 100.0) * float64(len(sorted)-1))
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

// Count returns the number of samples currently held.
func (l *LatencyWindow) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}

// Reset discards all samples.
func (l *LatencyWindow) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = l.samples[:0]
}

func (l *LatencyWindow) minLocked() time.Duration {
	if len(l.samples) == 0 {
		return 0
	}
	min := l.samples[0]
	for _, s := range l.samples[1:] {
		if s < min {
			min = s
		}
	}
	return min
}

func (l *LatencyWindow) maxLocked() time.Duration {
	if len(l.samples) == 0 {
		return 0
	}
	max := l.samples[0]
	for _, s := range l.samples[1:] {
		if s > max {
			max = s
		}
	}
	return max
}
