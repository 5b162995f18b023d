package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful connection attempts.
	OutcomeSuccess = "success"
	// OutcomeFailure labels failed connection attempts.
	OutcomeFailure = "failure"
	// OutcomeRejected labels attempts blocked by the circuit breaker.
	OutcomeRejected = "rejected"
)

var (
	samplesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "railwatch",
			Name:      "samples_received_total",
			Help:      "Total number of position samples received from the feed.",
		},
	)

	sampleLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "railwatch",
			Name:      "sample_latency_seconds",
			Help:      "Observed latency between sample timestamp and receipt.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	duplicateSamplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "railwatch",
			Name:      "duplicate_samples_total",
			Help:      "Total number of exact duplicate samples detected.",
		},
	)

	outOfOrderSamplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "railwatch",
			Name:      "out_of_order_samples_total",
			Help:      "Total number of out-of-order samples detected.",
		},
	)

	connectionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "railwatch",
			Name:      "connection_attempts_total",
			Help:      "Connection attempts partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	breakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "railwatch",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		},
	)

	alertsRaisedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "railwatch",
			Name:      "alerts_raised_total",
			Help:      "Alerts raised, partitioned by severity.",
		},
		[]string{"severity"},
	)

	alertsSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "railwatch",
			Name:      "alerts_suppressed_total",
			Help:      "Alerts dropped by the suppression window.",
		},
	)

	analysisCycleSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "railwatch",
			Name:      "analysis_cycle_seconds",
			Help:      "Duration of a full correlation/trend/anomaly analysis cycle.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)
)

// Register attaches railwatch collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		samplesReceivedTotal,
		sampleLatencySeconds,
		duplicateSamplesTotal,
		outOfOrderSamplesTotal,
		connectionAttemptsTotal,
		breakerState,
		alertsRaisedTotal,
		alertsSuppressedTotal,
		analysisCycleSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSample records a received sample and its latency.
func ObserveSample(latency time.Duration) {
	samplesReceivedTotal.Inc()
	if latency < 0 {
		latency = 0
	}
	sampleLatencySeconds.Observe(latency.Seconds())
}

// ObserveDuplicate counts an exact duplicate sample.
func ObserveDuplicate() {
	duplicateSamplesTotal.Inc()
}

// ObserveOutOfOrder counts an out-of-order sample.
func ObserveOutOfOrder() {
	outOfOrderSamplesTotal.Inc()
}

// ObserveConnectionAttempt records a connection attempt outcome label.
func ObserveConnectionAttempt(outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeFailure, OutcomeRejected:
	default:
		outcome = OutcomeFailure
	}
	connectionAttemptsTotal.WithLabelValues(outcome).Inc()
}

// SetBreakerState exports the current circuit breaker state.
func SetBreakerState(state int) {
	breakerState.Set(float64(state))
}

// ObserveAlertRaised counts a raised alert by severity.
func ObserveAlertRaised(severity string) {
	alertsRaisedTotal.WithLabelValues(severity).Inc()
}

// ObserveAlertSuppressed counts a suppressed alert.
func ObserveAlertSuppressed() {
	alertsSuppressedTotal.Inc()
}

// ObserveAnalysisCycle records the duration of one analysis cycle.
func ObserveAnalysisCycle(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	analysisCycleSeconds.Observe(duration.Seconds())
}
