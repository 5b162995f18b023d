package collector

import (
	"log/slog"
	"sync"
	"time"

	"github.com/railstack/railwatch/internal/metrics"
	"github.com/railstack/railwatch/internal/models"
	"github.com/railstack/railwatch/internal/utils"
)

// Config holds the health thresholds for the collector.
type Config struct {
	LatencyWindowSize    int           `yaml:"latencyWindowSize"`
	HighLatencyThreshold time.Duration `yaml:"highLatencyThreshold"`
	ErrorRateThreshold   float64       `yaml:"errorRateThreshold"`
}

// DefaultConfig returns the standard collector tunables.
func DefaultConfig() Config {
	return Config{
		LatencyWindowSize:    100,
		HighLatencyThreshold: time.Second,
		ErrorRateThreshold:   0.05,
	}
}

func (c *Config) normalise() {
	if c.LatencyWindowSize <= 0 {
		c.LatencyWindowSize = 100
	}
	if c.HighLatencyThreshold <= 0 {
		c.HighLatencyThreshold = time.Second
	}
	if c.ErrorRateThreshold <= 0 {
		c.ErrorRateThreshold = 0.05
	}
}

// Snapshot is an immutable view of the collector's health indicators.
type Snapshot struct {
	AverageLatency     time.Duration
	MinLatency         time.Duration
	MaxLatency         time.Duration
	Throughput         float64
	ErrorRate          float64
	TotalMessages      int64
	DuplicateCount     int64
	OutOfOrderCount    int64
	ConnectionErrors   int64
	ValidationFailures int64
	SecurityAnomalies  int64
	SuspiciousPatterns int64
	LastSecurityEvent  time.Time
	Connected          bool
	Healthy            bool
}

type lastSample struct {
	timestamp time.Time
	latitude  float64
	longitude float64
}

// Collector turns the raw position sample and connection event stream into
// continuously updated health indicators. All mutation is guarded by a single
// mutex; reads return immutable snapshots.
type Collector struct {
	mu                 sync.Mutex
	cfg                Config
	logger             *slog.Logger
	window             *utils.LatencyWindow
	lastSeen           map[string]lastSample
	totalMessages      int64
	duplicateCount     int64
	outOfOrderCount    int64
	connectionErrors   int64
	validationFailures int64
	securityAnomalies  int64
	suspiciousPatterns int64
	lastSecurityEvent  time.Time
	connected          bool
	startedAt          time.Time

	now func() time.Time
}

// New constructs a Collector.
func New(cfg Config, logger *slog.Logger) *Collector {
	cfg.normalise()
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		cfg:       cfg,
		logger:    logger,
		window:    utils.NewLatencyWindow(cfg.LatencyWindowSize),
		lastSeen:  make(map[string]lastSample),
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// RecordMessageReceived ingests one position sample received at receiveTime.
// Out-of-order and duplicate deliveries are tolerated and counted, never
// rejected.
func (c *Collector) RecordMessageReceived(sample models.PositionSample, receiveTime time.Time) {
	latency := receiveTime.Sub(sample.Timestamp)

	var duplicate, outOfOrder bool

	c.mu.Lock()
	c.totalMessages++
	c.window.Observe(latency)

	if prev, ok := c.lastSeen[sample.EntityID]; ok {
		switch {
		case sample.Timestamp.Equal(prev.timestamp) &&
			sample.Latitude == prev.latitude &&
			sample.Longitude == prev.longitude:
			duplicate = true
			c.duplicateCount++
		case sample.Timestamp.Before(prev.timestamp):
			outOfOrder = true
			c.outOfOrderCount++
		}
	}
	c.lastSeen[sample.EntityID] = lastSample{
		timestamp: sample.Timestamp,
		latitude:  sample.Latitude,
		longitude: sample.Longitude,
	}
	c.mu.Unlock()

	metrics.ObserveSample(latency)
	if duplicate {
		metrics.ObserveDuplicate()
	}
	if outOfOrder {
		metrics.ObserveOutOfOrder()
	}
}

// RecordConnectionError counts a connection-level failure.
func (c *Collector) RecordConnectionError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectionErrors++
	c.logger.Debug("connection error recorded", slog.Any("error", err))
}

// RecordValidationFailure counts a sample rejected at construction time.
func (c *Collector) RecordValidationFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validationFailures++
}

// RecordSecurityAnomaly counts a security-relevant irregularity in the feed.
func (c *Collector) RecordSecurityAnomaly() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.securityAnomalies++
	c.lastSecurityEvent = c.now()
}

// RecordSuspiciousPattern counts a suspicious movement or delivery pattern.
func (c *Collector) RecordSuspiciousPattern() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspiciousPatterns++
	c.lastSecurityEvent = c.now()
}

// SetConnected records the connection lifecycle state reported by the
// connection manager.
func (c *Collector) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

// Snapshot returns a consistent, immutable view of all health indicators.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// IsSystemHealthy reports whether the stream is connected, the error rate is
// within budget, and average latency is below the high-latency threshold.
func (c *Collector) IsSystemHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked().Healthy
}

// Reset clears all counters and windows atomically. Intended for maintenance
// and tests, not steady-state operation.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window.Reset()
	c.lastSeen = make(map[string]lastSample)
	c.totalMessages = 0
	c.duplicateCount = 0
	c.outOfOrderCount = 0
	c.connectionErrors = 0
	c.validationFailures = 0
	c.securityAnomalies = 0
	c.suspiciousPatterns = 0
	c.lastSecurityEvent = time.Time{}
	c.startedAt = c.now()
}

func (c *Collector) snapshotLocked() Snapshot {
	snap := Snapshot{
		AverageLatency:     c.window.Average(),
		MinLatency:         c.window.Min(),
		MaxLatency:         c.window.Max(),
		TotalMessages:      c.totalMessages,
		DuplicateCount:     c.duplicateCount,
		OutOfOrderCount:    c.outOfOrderCount,
		ConnectionErrors:   c.connectionErrors,
		ValidationFailures: c.validationFailures,
		SecurityAnomalies:  c.securityAnomalies,
		SuspiciousPatterns: c.suspiciousPatterns,
		LastSecurityEvent:  c.lastSecurityEvent,
		Connected:          c.connected,
	}

	elapsed := c.now().Sub(c.startedAt).Seconds()
	if elapsed > 0 {
		snap.Throughput = float64(c.totalMessages) / elapsed
	}
	if c.totalMessages > 0 {
		snap.ErrorRate = float64(c.connectionErrors+c.validationFailures) / float64(c.totalMessages)
	}
	snap.Healthy = c.connected &&
		snap.ErrorRate <= c.cfg.ErrorRateThreshold &&
		snap.AverageLatency <= c.cfg.HighLatencyThreshold
	return snap
}
