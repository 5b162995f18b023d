package models

import "time"

// MetricDataPoint is a single observation of a named metric.
type MetricDataPoint struct {
	Name      string
	Value     float64
	Timestamp time.Time
	Metadata  map[string]string
}

// CorrelationStrength buckets the magnitude of a correlation coefficient.
type CorrelationStrength string

const (
	StrengthVeryStrong CorrelationStrength = "very_strong"
	StrengthStrong     CorrelationStrength = "strong"
	StrengthModerate   CorrelationStrength = "moderate"
	StrengthWeak       CorrelationStrength = "weak"
	StrengthVeryWeak   CorrelationStrength = "very_weak"
)

// CorrelationStrengthOf maps an absolute coefficient to a strength bucket.
func CorrelationStrengthOf(abs float64) CorrelationStrength {
	switch {
	case abs >= 0.9:
		return StrengthVeryStrong
	case abs >= 0.7:
		return StrengthStrong
	case abs >= 0.5:
		return StrengthModerate
	case abs >= 0.3:
		return StrengthWeak
	default:
		return StrengthVeryWeak
	}
}

// CorrelationDirection is the sign of a correlation coefficient.
type CorrelationDirection string

const (
	DirectionPositive CorrelationDirection = "positive"
	DirectionNegative CorrelationDirection = "negative"
)

// MetricCorrelation describes a pairwise linear association found during an
// analysis cycle. Results are recomputed each cycle and never persisted.
type MetricCorrelation struct {
	Metric1     string
	Metric2     string
	Coefficient float64
	Strength    CorrelationStrength
	Direction   CorrelationDirection
	SampleSize  int
	Timestamp   time.Time
}

// TrendDirection classifies the slope of a fitted trend.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// TrendStrength buckets the fit quality (R squared) of a trend.
type TrendStrength string

const (
	TrendStrengthStrong   TrendStrength = "strong"
	TrendStrengthModerate TrendStrength = "moderate"
	TrendStrengthWeak     TrendStrength = "weak"
	TrendStrengthVeryWeak TrendStrength = "very_weak"
)

// TrendStrengthOf maps an R squared value to a strength bucket.
func TrendStrengthOf(rSquared float64) TrendStrength {
	switch {
	case rSquared >= 0.8:
		return TrendStrengthStrong
	case rSquared >= 0.6:
		return TrendStrengthModerate
	case rSquared >= 0.4:
		return TrendStrengthWeak
	default:
		return TrendStrengthVeryWeak
	}
}

// MetricTrend is a least-squares fit over a metric's recent window.
type MetricTrend struct {
	Name          string
	Slope         float64
	RSquared      float64
	Direction     TrendDirection
	Strength      TrendStrength
	ChangePercent float64
	SampleSize    int
}

// AnomalyType distinguishes values above or below the historical mean.
type AnomalyType string

const (
	AnomalySpike AnomalyType = "spike"
	AnomalyDip   AnomalyType = "dip"
)

// MetricAnomaly flags a statistically unusual observation.
type MetricAnomaly struct {
	Name      string
	Type      AnomalyType
	Severity  Severity
	Value     float64
	Expected  float64
	Deviation float64
	Timestamp time.Time
}

// Insight is a human-readable finding synthesized from correlations, trends,
// or anomalies.
type Insight struct {
	ID              string
	Source          string
	Title           string
	Description     string
	Severity        Severity
	Recommendations []string
	CreatedAt       time.Time
}
