package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/railstack/railwatch/internal/metrics"
	"github.com/railstack/railwatch/internal/models"
)

// Config holds the statistical thresholds of the engine. None of the defaults
// are calibrated truths; deployments tune them per feed.
type Config struct {
	Interval             time.Duration `yaml:"interval"`
	HistoryLimit         int           `yaml:"historyLimit"`
	CorrelationMinPoints int           `yaml:"correlationMinPoints"`
	CorrelationMaxPoints int           `yaml:"correlationMaxPoints"`
	AlignmentTolerance   time.Duration `yaml:"alignmentTolerance"`
	CorrelationThreshold float64       `yaml:"correlationThreshold"`
	TrendMinPoints       int           `yaml:"trendMinPoints"`
	TrendLookback        time.Duration `yaml:"trendLookback"`
	SlopeThreshold       float64       `yaml:"slopeThreshold"`
	AnomalyMinPoints     int           `yaml:"anomalyMinPoints"`
	AnomalyLookback      time.Duration `yaml:"anomalyLookback"`
	AnomalyZThreshold    float64       `yaml:"anomalyZThreshold"`
}

// DefaultConfig returns the standard analysis tunables.
func DefaultConfig() Config {
	return Config{
		Interval:             60 * time.Second,
		HistoryLimit:         1000,
		CorrelationMinPoints: 10,
		CorrelationMaxPoints: 50,
		AlignmentTolerance:   60 * time.Second,
		CorrelationThreshold: 0.7,
		TrendMinPoints:       5,
		TrendLookback:        15 * time.Minute,
		SlopeThreshold:       0.1,
		AnomalyMinPoints:     10,
		AnomalyLookback:      5 * time.Minute,
		AnomalyZThreshold:    2.0,
	}
}

func (c *Config) normalise() {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	if c.CorrelationMinPoints < 2 {
		c.CorrelationMinPoints = def.CorrelationMinPoints
	}
	if c.CorrelationMaxPoints < c.CorrelationMinPoints {
		c.CorrelationMaxPoints = def.CorrelationMaxPoints
	}
	if c.AlignmentTolerance <= 0 {
		c.AlignmentTolerance = def.AlignmentTolerance
	}
	if c.CorrelationThreshold <= 0 {
		c.CorrelationThreshold = def.CorrelationThreshold
	}
	if c.TrendMinPoints < 2 {
		c.TrendMinPoints = def.TrendMinPoints
	}
	if c.TrendLookback <= 0 {
		c.TrendLookback = def.TrendLookback
	}
	if c.SlopeThreshold <= 0 {
		c.SlopeThreshold = def.SlopeThreshold
	}
	if c.AnomalyMinPoints < 2 {
		c.AnomalyMinPoints = def.AnomalyMinPoints
	}
	if c.AnomalyLookback <= 0 {
		c.AnomalyLookback = def.AnomalyLookback
	}
	if c.AnomalyZThreshold <= 0 {
		c.AnomalyZThreshold = def.AnomalyZThreshold
	}
}

// Notifier receives insights synthesized by an analysis cycle. The alerting
// system satisfies this at the wiring layer.
type Notifier interface {
	Notify(insight models.Insight)
}

// Engine ingests named metric streams and periodically computes pairwise
// correlations, per-metric trends, and statistical anomalies over them.
// Results are recomputed each cycle and held in memory only.
type Engine struct {
	mu           sync.Mutex
	cfg          Config
	logger       *slog.Logger
	notifier     Notifier
	series       map[string][]models.MetricDataPoint
	correlations []models.MetricCorrelation
	trends       []models.MetricTrend
	anomalies    []models.MetricAnomaly
	insights     []models.Insight
	insightSeq   atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// New constructs an Engine. The notifier may be nil.
func New(cfg Config, logger *slog.Logger, notifier Notifier) *Engine {
	cfg.normalise()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		notifier: notifier,
		series:   make(map[string][]models.MetricDataPoint),
		now:      time.Now,
	}
}

// RecordMetric appends an observation to the named metric's bounded history.
func (e *Engine) RecordMetric(name string, value float64, timestamp time.Time, metadata map[string]string) {
	if name == "" {
		return
	}
	if timestamp.IsZero() {
		timestamp = e.now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	points := append(e.series[name], models.MetricDataPoint{
		Name:      name,
		Value:     value,
		Timestamp: timestamp,
		Metadata:  metadata,
	})
	if len(points) > e.cfg.HistoryLimit {
		points = points[len(points)-e.cfg.HistoryLimit:]
	}
	e.series[name] = points
}

// Start launches the periodic analysis loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go e.loop(ctx)
}

// Stop cancels the analysis loop and waits for it to exit. Already computed
// results remain readable.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunAnalysis()
		}
	}
}

// RunAnalysis executes one full correlation/trend/anomaly cycle. A failure
// analysing one metric or pair never aborts the rest of the cycle.
func (e *Engine) RunAnalysis() {
	started := e.now()

	e.mu.Lock()
	snapshot := make(map[string][]models.MetricDataPoint, len(e.series))
	for name, points := range e.series {
		snapshot[name] = append([]models.MetricDataPoint(nil), points...)
	}
	e.mu.Unlock()

	correlations := e.computeCorrelations(snapshot, started)
	trends := e.computeTrends(snapshot, started)
	anomalies := e.computeAnomalies(snapshot, started)
	insights := e.buildInsights(correlations, trends, anomalies, started)

	e.mu.Lock()
	e.correlations = correlations
	e.trends = trends
	e.anomalies = anomalies
	e.insights = insights
	notifier := e.notifier
	e.mu.Unlock()

	if notifier != nil {
		for _, insight := range insights {
			notifier.Notify(insight)
		}
	}

	metrics.ObserveAnalysisCycle(e.now().Sub(started))
	e.logger.Debug("analysis cycle finished",
		slog.Int("correlations", len(correlations)),
		slog.Int("trends", len(trends)),
		slog.Int("anomalies", len(anomalies)),
		slog.Int("insights", len(insights)))
}

// Correlations returns a copy of the last cycle's significant correlations.
func (e *Engine) Correlations() []models.MetricCorrelation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.MetricCorrelation(nil), e.correlations...)
}

// Trends returns a copy of the last cycle's trends.
func (e *Engine) Trends() []models.MetricTrend {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.MetricTrend(nil), e.trends...)
}

// Anomalies returns a copy of the last cycle's anomalies.
func (e *Engine) Anomalies() []models.MetricAnomaly {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.MetricAnomaly(nil), e.anomalies...)
}

// Insights returns a copy of the last cycle's insights.
func (e *Engine) Insights() []models.Insight {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Insight(nil), e.insights...)
}

func (e *Engine) computeCorrelations(series map[string][]models.MetricDataPoint, now time.Time) []models.MetricCorrelation {
	names := make([]string, 0, len(series))
	for name, points := range series {
		if len(points) >= e.cfg.CorrelationMinPoints {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var results []models.MetricCorrelation
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			e.safely("correlation "+names[i]+"/"+names[j], func() {
				xs, ys := alignSeries(series[names[i]], series[names[j]], e.cfg.CorrelationMaxPoints, e.cfg.AlignmentTolerance)
				if len(xs) < e.cfg.CorrelationMinPoints {
					return
				}
				r := pearson(xs, ys)
				if math.Abs(r) < e.cfg.CorrelationThreshold {
					return
				}
				direction := models.DirectionPositive
				if r < 0 {
					direction = models.DirectionNegative
				}
				results = append(results, models.MetricCorrelation{
					Metric1:     names[i],
					Metric2:     names[j],
					Coefficient: r,
					Strength:    models.CorrelationStrengthOf(math.Abs(r)),
					Direction:   direction,
					SampleSize:  len(xs),
					Timestamp:   now,
				})
			})
		}
	}
	return results
}

func (e *Engine) computeTrends(series map[string][]models.MetricDataPoint, now time.Time) []models.MetricTrend {
	cutoff := now.Add(-e.cfg.TrendLookback)

	names := sortedNames(series)
	var results []models.MetricTrend
	for _, name := range names {
		e.safely("trend "+name, func() {
			recent := pointsSince(series[name], cutoff)
			if len(recent) < e.cfg.TrendMinPoints {
				return
			}
			values := make([]float64, len(recent))
			for i, p := range recent {
				values[i] = p.Value
			}
			slope, rSquared := linearFit(values)

			direction := models.TrendStable
			switch {
			case slope > e.cfg.SlopeThreshold:
				direction = models.TrendIncreasing
			case slope < -e.cfg.SlopeThreshold:
				direction = models.TrendDecreasing
			}

			changePercent := 0.0
			if first := values[0]; first != 0 {
				changePercent = (values[len(values)-1] - first) / first * 100
			}

			results = append(results, models.MetricTrend{
				Name:          name,
				Slope:         slope,
				RSquared:      rSquared,
				Direction:     direction,
				Strength:      models.TrendStrengthOf(rSquared),
				ChangePercent: changePercent,
				SampleSize:    len(recent),
			})
		})
	}
	return results
}

func (e *Engine) computeAnomalies(series map[string][]models.MetricDataPoint, now time.Time) []models.MetricAnomaly {
	cutoff := now.Add(-e.cfg.AnomalyLookback)

	names := sortedNames(series)
	var results []models.MetricAnomaly
	for _, name := range names {
		e.safely("anomaly "+name, func() {
			recent := pointsSince(series[name], cutoff)
			if len(recent) < e.cfg.AnomalyMinPoints {
				return
			}

			history := make([]float64, len(series[name]))
			for i, p := range series[name] {
				history[i] = p.Value
			}
			mean, stddev := meanStddev(history)
			if stddev == 0 {
				return
			}

			for _, p := range recent {
				z := math.Abs(p.Value-mean) / stddev
				if z <= e.cfg.AnomalyZThreshold {
					continue
				}
				kind := models.AnomalyDip
				if p.Value > mean {
					kind = models.AnomalySpike
				}
				results = append(results, models.MetricAnomaly{
					Name:      name,
					Type:      kind,
					Severity:  anomalySeverity(z),
					Value:     p.Value,
					Expected:  mean,
					Deviation: z,
					Timestamp: p.Timestamp,
				})
			}
		})
	}
	return results
}

// safely isolates a single computation so one bad metric cannot abort the
// whole cycle.
func (e *Engine) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("analysis step panicked",
				slog.String("step", what),
				slog.Any("panic", r))
		}
	}()
	fn()
}

func anomalySeverity(z float64) models.Severity {
	switch {
	case z > 4:
		return models.SeverityCritical
	case z > 3:
		return models.SeverityHigh
	case z > 2.5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func sortedNames(series map[string][]models.MetricDataPoint) []string {
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// pointsSince returns the points at or after the cutoff, oldest first.
func pointsSince(points []models.MetricDataPoint, cutoff time.Time) []models.MetricDataPoint {
	recent := make([]models.MetricDataPoint, 0, len(points))
	for _, p := range points {
		if !p.Timestamp.Before(cutoff) {
			recent = append(recent, p)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timestamp.Before(recent[j].Timestamp)
	})
	return recent
}

// alignSeries pairs the most recent points of two series by nearest
// timestamp. Point pairs further apart than the tolerance are rejected.
func alignSeries(a, b []models.MetricDataPoint, maxPoints int, tolerance time.Duration) (xs, ys []float64) {
	a = lastN(a, maxPoints)
	b = lastN(b, maxPoints)
	if len(a) == 0 || len(b) == 0 {
		return nil, nil
	}

	sorted := append([]models.MetricDataPoint(nil), b...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	for _, p := range a {
		q, ok := nearestByTime(sorted, p.Timestamp)
		if !ok {
			continue
		}
		gap := p.Timestamp.Sub(q.Timestamp)
		if gap < 0 {
			gap = -gap
		}
		if gap > tolerance {
			continue
		}
		xs = append(xs, p.Value)
		ys = append(ys, q.Value)
	}
	return xs, ys
}

func nearestByTime(sorted []models.MetricDataPoint, ts time.Time) (models.MetricDataPoint, bool) {
	if len(sorted) == 0 {
		return models.MetricDataPoint{}, false
	}
	idx := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].Timestamp.Before(ts)
	})
	if idx == 0 {
		return sorted[0], true
	}
	if idx == len(sorted) {
		return sorted[len(sorted)-1], true
	}
	before := sorted[idx-1]
	after := sorted[idx]
	if ts.Sub(before.Timestamp) <= after.Timestamp.Sub(ts) {
		return before, true
	}
	return after, true
}

func lastN(points []models.MetricDataPoint, n int) []models.MetricDataPoint {
	if len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}

func (e *Engine) nextInsightID() string {
	return fmt.Sprintf("ins-%d", e.insightSeq.Add(1))
}
