package breaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/railstack/railwatch/internal/metrics"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed allows all connection attempts.
	StateClosed State = iota
	// StateOpen blocks all connection attempts.
	StateOpen
	// StateHalfOpen allows a bounded number of trial attempts.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the breaker thresholds.
type Config struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	SuccessThreshold int           `yaml:"successThreshold"`
	HalfOpenMaxCalls int           `yaml:"halfOpenMaxCalls"`
	OpenTimeout      time.Duration `yaml:"openTimeout"`
}

// DefaultConfig returns the standard breaker thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		HalfOpenMaxCalls: 3,
		OpenTimeout:      60 * time.Second,
	}
}

func (c *Config) normalise() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 3
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 3
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 60 * time.Second
	}
}

// Stats is an immutable snapshot of the breaker.
type Stats struct {
	State           State
	FailureCount    int
	SuccessCount    int
	HalfOpenCalls   int
	LastFailureTime time.Time
}

// Breaker gates connection attempts based on recent success/failure history.
// All mutation happens under a single mutex so concurrent callers observe a
// linearizable view of the state machine.
type Breaker struct {
	mu            sync.Mutex
	cfg           Config
	logger        *slog.Logger
	state         State
	failureCount  int
	successCount  int
	halfOpenCalls int
	lastFailure   time.Time

	now func() time.Time
}

// New constructs a Breaker in the closed state.
func New(cfg Config, logger *slog.Logger) *Breaker {
	cfg.normalise()
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		cfg:    cfg,
		logger: logger,
		state:  StateClosed,
		now:    time.Now,
	}
}

// CanAttemptConnection reports whether a connection attempt is allowed right
// now. When the open timeout has elapsed it transitions the breaker to
// half-open; in half-open it counts the probe against HalfOpenMaxCalls.
func (b *Breaker) CanAttemptConnection() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.cfg.OpenTimeout {
			b.transition(StateHalfOpen)
			b.halfOpenCalls++
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenCalls++
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful connection outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	case StateClosed:
		b.failureCount = 0
	}
}

// RecordFailure records a failed connection outcome.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		// A single failed probe re-opens the circuit.
		b.transition(StateOpen)
	}
}

// Stats returns an immutable snapshot of the breaker counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		HalfOpenCalls:   b.halfOpenCalls,
		LastFailureTime: b.lastFailure,
	}
}

// transition centralises every state change so counter resets stay
// consistent. Callers must hold b.mu.
func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next

	switch next {
	case StateClosed:
		b.failureCount = 0
		b.successCount = 0
		b.halfOpenCalls = 0
	case StateOpen:
		b.successCount = 0
		b.halfOpenCalls = 0
	case StateHalfOpen:
		b.successCount = 0
		b.halfOpenCalls = 0
	}

	metrics.SetBreakerState(int(next))
	b.logger.Info("breaker state changed",
		slog.String("from", prev.String()),
		slog.String("to", next.String()),
		slog.Int("failures", b.failureCount))
}
