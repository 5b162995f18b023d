package conn

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/railstack/railwatch/internal/metrics"
	"github.com/railstack/railwatch/internal/utils"
)

// State is the connection lifecycle state. It is owned by the Manager and
// observed read-only through ConnectionStats.
type State int

const (
	// StateDisconnected means no connection and no attempt in flight.
	StateDisconnected State = iota
	// StateConnecting means a dial attempt is in flight.
	StateConnecting
	// StateConnected means the upstream connection is established.
	StateConnected
	// StateFailed means the retry budget is exhausted; only ForceReconnect
	// leaves this state.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrNetworkUnavailable is returned when the network collaborator reports
	// no connectivity before an attempt is made.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrCircuitOpen is returned when the circuit breaker refuses the attempt.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrRetriesExhausted marks the terminal failure state.
	ErrRetriesExhausted = errors.New("retry attempts exhausted")
)

// Conn is an established upstream feed connection.
type Conn interface {
	Ping(ctx context.Context) error
	Close() error
}

// Dialer establishes upstream feed connections.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// NetworkStatus reports device network availability before an attempt.
type NetworkStatus interface {
	IsAvailable() bool
}

// QualityObserver optionally extends NetworkStatus with a link quality score
// in [0,1]. When the network collaborator implements it, the manager samples
// the score while connected and surfaces the latest reading in Stats.
type QualityObserver interface {
	Quality() float64
}

// Gate decides whether a connection attempt is allowed and records outcomes.
// *breaker.Breaker satisfies this interface.
type Gate interface {
	CanAttemptConnection() bool
	RecordSuccess()
	RecordFailure()
}

// HealthRecorder receives connection lifecycle events. The metrics collector
// satisfies this interface.
type HealthRecorder interface {
	RecordConnectionError(err error)
	SetConnected(connected bool)
}

// Config holds retry and heartbeat tunables.
type Config struct {
	ConnectTimeout    time.Duration `yaml:"connectTimeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	QualityInterval   time.Duration `yaml:"qualityInterval"`
	InitialRetryDelay time.Duration `yaml:"initialRetryDelay"`
	MaxRetryDelay     time.Duration `yaml:"maxRetryDelay"`
	RetryJitter       time.Duration `yaml:"retryJitter"`
	MaxRetryAttempts  int           `yaml:"maxRetryAttempts"`
}

// DefaultConfig returns the standard connection tunables.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		QualityInterval:   15 * time.Second,
		InitialRetryDelay: time.Second,
		MaxRetryDelay:     30 * time.Second,
		RetryJitter:       time.Second,
		MaxRetryAttempts:  5,
	}
}

func (c *Config) normalise() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.QualityInterval <= 0 {
		c.QualityInterval = 15 * time.Second
	}
	if c.InitialRetryDelay <= 0 {
		c.InitialRetryDelay = time.Second
	}
	if c.MaxRetryDelay < c.InitialRetryDelay {
		c.MaxRetryDelay = 30 * time.Second
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = 5
	}
}

// Stats is a read-only snapshot of the connection manager.
type Stats struct {
	State             State
	RetryAttempts     int
	HeartbeatFailures int
	LastError         string
	ConnectedAt       time.Time
	// LinkQuality is the last score observed from a QualityObserver network,
	// in [0,1]. It is 1 on a fresh connection until the first sample arrives.
	LinkQuality float64
}

// Manager establishes and maintains the upstream feed connection: it consults
// the Gate before each attempt, retries failures with capped exponential
// backoff plus jitter, and probes the live connection with a heartbeat loop.
// No lock is held across a dial, ping, or timer wait.
type Manager struct {
	cfg      Config
	logger   *slog.Logger
	dialer   Dialer
	network  NetworkStatus
	gate     Gate
	recorder HealthRecorder

	mu                sync.Mutex
	state             State
	endpoint          string
	conn              Conn
	retryAttempts     int
	heartbeatFailures int
	lastErr           error
	connectedAt       time.Time
	linkQuality       float64
	retryTimer        *time.Timer
	hbCancel          context.CancelFunc
	// epoch is bumped by Disconnect so that a dial completing afterwards can
	// tell its attempt was cancelled and must not install state.
	epoch uint64

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a connection manager. The dialer is required; gate,
// network and recorder collaborators may be nil.
func NewManager(cfg Config, dialer Dialer, gate Gate, network NetworkStatus, recorder HealthRecorder, logger *slog.Logger) *Manager {
	cfg.normalise()
	if logger == nil {
		logger = slog.Default()
	}
	baseCtx, stop := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		dialer:   dialer,
		network:  network,
		gate:     gate,
		recorder: recorder,
		state:    StateDisconnected,
		baseCtx:  baseCtx,
		stop:     stop,
	}
}

// Connect attempts to establish the upstream connection. It is a no-op when
// already connected or when an attempt is in flight, fails fast when the
// network is unavailable or the circuit breaker refuses, and otherwise dials
// under the configured timeout.
func (m *Manager) Connect(ctx context.Context, endpoint string) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	if m.network != nil && !m.network.IsAvailable() {
		m.lastErr = ErrNetworkUnavailable
		m.mu.Unlock()
		if m.recorder != nil {
			m.recorder.RecordConnectionError(ErrNetworkUnavailable)
		}
		return utils.NewAppError("conn.connect", "no network", ErrNetworkUnavailable)
	}
	if m.gate != nil && !m.gate.CanAttemptConnection() {
		m.lastErr = ErrCircuitOpen
		m.mu.Unlock()
		metrics.ObserveConnectionAttempt(metrics.OutcomeRejected)
		return utils.NewAppError("conn.connect", "attempt rejected", ErrCircuitOpen)
	}
	m.state = StateConnecting
	m.endpoint = endpoint
	epoch := m.epoch
	m.mu.Unlock()

	return m.attempt(ctx, endpoint, epoch)
}

// attempt dials the endpoint and routes the outcome through the success or
// failure path. Stopping the manager cancels the dial context as well.
func (m *Manager) attempt(ctx context.Context, endpoint string, epoch uint64) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	stopWatch := context.AfterFunc(m.baseCtx, cancel)
	defer stopWatch()

	c, err := m.dialer.Dial(dialCtx, endpoint)
	if err != nil {
		m.handleFailure(err, epoch)
		return utils.NewAppError("conn.connect", "dial "+endpoint, err)
	}
	m.handleSuccess(c, epoch)
	return nil
}

func (m *Manager) handleSuccess(c Conn, epoch uint64) {
	m.mu.Lock()
	// Disconnect or Close may have raced the dial; a stale completion must
	// not resurrect the connection.
	if m.state != StateConnecting || m.epoch != epoch || m.baseCtx.Err() != nil {
		m.mu.Unlock()
		_ = c.Close()
		m.logger.Debug("discarding dial result for cancelled attempt")
		return
	}
	m.stopRetryLocked()
	m.stopHeartbeatLocked()
	m.conn = c
	m.state = StateConnected
	m.retryAttempts = 0
	m.lastErr = nil
	m.connectedAt = time.Now()
	m.linkQuality = 1

	hbCtx, cancel := context.WithCancel(m.baseCtx)
	m.hbCancel = cancel
	m.wg.Add(1)
	go m.heartbeatLoop(hbCtx, c)
	if obs, ok := m.network.(QualityObserver); ok {
		m.wg.Add(1)
		go m.qualityLoop(hbCtx, obs)
	}
	endpoint := m.endpoint
	m.mu.Unlock()

	metrics.ObserveConnectionAttempt(metrics.OutcomeSuccess)
	if m.gate != nil {
		m.gate.RecordSuccess()
	}
	if m.recorder != nil {
		m.recorder.SetConnected(true)
	}
	m.logger.Info("connected to feed", slog.String("endpoint", endpoint))
}

func (m *Manager) handleFailure(err error, epoch uint64) {
	m.mu.Lock()
	stale := m.epoch != epoch || m.baseCtx.Err() != nil
	m.mu.Unlock()
	if stale {
		// The attempt was cancelled; its failure carries no signal.
		return
	}

	metrics.ObserveConnectionAttempt(metrics.OutcomeFailure)
	if m.gate != nil {
		m.gate.RecordFailure()
	}
	if m.recorder != nil {
		m.recorder.RecordConnectionError(err)
		m.recorder.SetConnected(false)
	}
	m.scheduleRetryOrFail(err, epoch)
}

// scheduleRetryOrFail consumes one retry attempt: it either arms the backoff
// timer or transitions to the terminal FAILED state.
func (m *Manager) scheduleRetryOrFail(err error, epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		return
	}

	m.lastErr = err
	if m.retryAttempts >= m.cfg.MaxRetryAttempts {
		m.state = StateFailed
		m.lastErr = ErrRetriesExhausted
		m.logger.Error("connection failed permanently",
			slog.Int("attempts", m.retryAttempts),
			slog.Any("error", err))
		return
	}

	m.state = StateDisconnected
	m.retryAttempts++
	delay := m.retryDelay(m.retryAttempts) + m.jitter()
	m.logger.Warn("connection attempt failed, scheduling retry",
		slog.Int("attempt", m.retryAttempts),
		slog.Duration("delay", delay),
		slog.Any("error", err))

	m.stopRetryLocked()
	endpoint := m.endpoint
	m.retryTimer = time.AfterFunc(delay, func() {
		m.retry(endpoint)
	})
}

// retry re-attempts the connection from the backoff timer. The breaker gate
// still decides whether the attempt may proceed.
func (m *Manager) retry(endpoint string) {
	select {
	case <-m.baseCtx.Done():
		return
	default:
	}

	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	epoch := m.epoch
	if m.network != nil && !m.network.IsAvailable() {
		m.mu.Unlock()
		m.handleFailure(ErrNetworkUnavailable, epoch)
		return
	}
	if m.gate != nil && !m.gate.CanAttemptConnection() {
		m.mu.Unlock()
		// The breaker refused its own retry: burn the attempt without
		// punishing the breaker for it.
		metrics.ObserveConnectionAttempt(metrics.OutcomeRejected)
		m.scheduleRetryOrFail(ErrCircuitOpen, epoch)
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()

	_ = m.attempt(m.baseCtx, endpoint, epoch)
}

// retryDelay computes the capped exponential backoff for the given attempt
// number (1-based), without jitter.
func (m *Manager) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Shifting beyond 62 bits would overflow; everything that large is
	// capped anyway.
	if attempt > 32 {
		return m.cfg.MaxRetryDelay
	}
	delay := m.cfg.InitialRetryDelay << uint(attempt-1)
	if delay <= 0 || delay > m.cfg.MaxRetryDelay {
		return m.cfg.MaxRetryDelay
	}
	return delay
}

// jitter returns a random delay in [0, RetryJitter) to avoid synchronized
// retry storms.
func (m *Manager) jitter() time.Duration {
	if m.cfg.RetryJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(m.cfg.RetryJitter)))
}

// heartbeatLoop periodically probes the live connection. A failed probe is
// treated as a connection failure and re-enters the retry path.
func (m *Manager) heartbeatLoop(ctx context.Context, c Conn) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			m.handleHeartbeatFailure(c, err)
			return
		}
	}
}

func (m *Manager) handleHeartbeatFailure(c Conn, err error) {
	m.mu.Lock()
	// Only react if this heartbeat still belongs to the live connection.
	if m.state != StateConnected || m.conn != c {
		m.mu.Unlock()
		return
	}
	m.heartbeatFailures++
	m.conn = nil
	m.state = StateDisconnected
	m.stopHeartbeatLocked()
	epoch := m.epoch
	m.mu.Unlock()

	_ = c.Close()
	m.logger.Warn("heartbeat failed", slog.Any("error", err))
	m.handleFailure(err, epoch)
}

// qualityLoop samples the network's link quality while the connection lives
// and logs transitions across the degraded threshold.
func (m *Manager) qualityLoop(ctx context.Context, obs QualityObserver) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.QualityInterval)
	defer ticker.Stop()

	degraded := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q := obs.Quality()
			if q < 0 {
				q = 0
			}
			if q > 1 {
				q = 1
			}

			m.mu.Lock()
			if m.state == StateConnected {
				m.linkQuality = q
			}
			m.mu.Unlock()

			if q < 0.5 && !degraded {
				degraded = true
				m.logger.Warn("link quality degraded", slog.Float64("quality", q))
			} else if q >= 0.5 && degraded {
				degraded = false
				m.logger.Info("link quality recovered", slog.Float64("quality", q))
			}
		}
	}
}

// Disconnect cancels any pending retry and heartbeat work and transitions to
// DISCONNECTED unconditionally. It is idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopRetryLocked()
	m.stopHeartbeatLocked()
	c := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.epoch++
	m.mu.Unlock()

	if c != nil {
		_ = c.Close()
	}
	if m.recorder != nil {
		m.recorder.SetConnected(false)
	}
}

// ForceReconnect resets the retry budget and attempts a fresh connection.
// This is the only way out of the FAILED state.
func (m *Manager) ForceReconnect(ctx context.Context, endpoint string) error {
	m.Disconnect()

	m.mu.Lock()
	m.retryAttempts = 0
	m.lastErr = nil
	m.mu.Unlock()

	return m.Connect(ctx, endpoint)
}

// ConnectionStats returns a read-only snapshot of the manager.
func (m *Manager) ConnectionStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		State:             m.state,
		RetryAttempts:     m.retryAttempts,
		HeartbeatFailures: m.heartbeatFailures,
		ConnectedAt:       m.connectedAt,
		LinkQuality:       m.linkQuality,
	}
	if m.lastErr != nil {
		stats.LastError = m.lastErr.Error()
	}
	return stats
}

// Close permanently stops the manager: any in-flight attempt, pending retry
// timer, and heartbeat loop are cancelled and awaited.
func (m *Manager) Close() {
	m.stop()
	m.Disconnect()
	m.wg.Wait()
}

func (m *Manager) stopRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager) stopHeartbeatLocked() {
	if m.hbCancel != nil {
		m.hbCancel()
		m.hbCancel = nil
	}
}
