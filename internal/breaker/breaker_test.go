package breaker

import (
	"testing"
	"time"
)

func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	b := New(cfg, nil)
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterFailureThreshold(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		if got := b.Stats().State; got != StateClosed {
			t.Fatalf("expected closed after %d failures, got %v", i+1, got)
		}
	}

	b.RecordFailure()
	if got := b.Stats().State; got != StateOpen {
		t.Fatalf("expected open after 5 failures, got %v", got)
	}
	if b.CanAttemptConnection() {
		t.Fatalf("expected attempts blocked while open")
	}
}

func TestBreakerHalfOpenAfterTimeout(t *testing.T) {
	b, now := newTestBreaker(DefaultConfig())

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	if b.CanAttemptConnection() {
		t.Fatalf("expected open breaker to block attempts")
	}

	*now = now.Add(61 * time.Second)
	if !b.CanAttemptConnection() {
		t.Fatalf("expected half-open probe allowed after timeout")
	}
	if got := b.Stats().State; got != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", got)
	}
}

func TestBreakerClosesAfterSuccessThreshold(t *testing.T) {
	b, now := newTestBreaker(DefaultConfig())

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*now = now.Add(61 * time.Second)
	if !b.CanAttemptConnection() {
		t.Fatalf("expected probe allowed")
	}

	for i := 0; i < 3; i++ {
		b.RecordSuccess()
	}
	stats := b.Stats()
	if stats.State != StateClosed {
		t.Fatalf("expected closed after 3 successes, got %v", stats.State)
	}
	if stats.FailureCount != 0 {
		t.Fatalf("expected failure count reset on close, got %d", stats.FailureCount)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(DefaultConfig())

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*now = now.Add(61 * time.Second)
	b.CanAttemptConnection()

	b.RecordFailure()
	if got := b.Stats().State; got != StateOpen {
		t.Fatalf("expected re-open on half-open failure, got %v", got)
	}
}

func TestBreakerHalfOpenCallLimit(t *testing.T) {
	b, now := newTestBreaker(DefaultConfig())

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*now = now.Add(61 * time.Second)

	for i := 0; i < 3; i++ {
		if !b.CanAttemptConnection() {
			t.Fatalf("expected probe %d allowed", i+1)
		}
	}
	if b.CanAttemptConnection() {
		t.Fatalf("expected fourth half-open probe blocked")
	}
	if got := b.Stats().State; got != StateHalfOpen {
		t.Fatalf("expected state to remain half-open, got %v", got)
	}
}
