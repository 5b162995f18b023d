package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/railstack/railwatch/internal/models"
)

// buildInsights synthesizes human-readable findings from the cycle's
// correlations, trends, and anomalies: strong correlations, strong non-stable
// trends, and high/critical anomalies each yield one insight.
func (e *Engine) buildInsights(
	correlations []models.MetricCorrelation,
	trends []models.MetricTrend,
	anomalies []models.MetricAnomaly,
	now time.Time,
) []models.Insight {
	var insights []models.Insight

	for _, corr := range correlations {
		if corr.Strength != models.StrengthStrong && corr.Strength != models.StrengthVeryStrong {
			continue
		}
		relation := "rises with"
		if corr.Direction == models.DirectionNegative {
			relation = "falls as"
		}
		severity := models.SeverityLow
		if corr.Strength == models.StrengthVeryStrong {
			severity = models.SeverityMedium
		}
		recs := appendUnique(recommendationsFor(corr.Metric1), recommendationsFor(corr.Metric2)...)
		insights = append(insights, models.Insight{
			ID:     e.nextInsightID(),
			Source: "correlation",
			Title:  fmt.Sprintf("%s correlates with %s", corr.Metric1, corr.Metric2),
			Description: fmt.Sprintf("%s %s %s (r=%.2f over %d aligned points)",
				corr.Metric1, relation, corr.Metric2, corr.Coefficient, corr.SampleSize),
			Severity:        severity,
			Recommendations: recs,
			CreatedAt:       now,
		})
	}

	for _, trend := range trends {
		if trend.Strength != models.TrendStrengthStrong || trend.Direction == models.TrendStable {
			continue
		}
		severity := models.SeverityLow
		if trend.ChangePercent > 50 || trend.ChangePercent < -50 {
			severity = models.SeverityMedium
		}
		insights = append(insights, models.Insight{
			ID:     e.nextInsightID(),
			Source: "trend",
			Title:  fmt.Sprintf("%s is %s", trend.Name, trend.Direction),
			Description: fmt.Sprintf("%s changed %.1f%% over the window (slope %.3f, R²=%.2f, %d points)",
				trend.Name, trend.ChangePercent, trend.Slope, trend.RSquared, trend.SampleSize),
			Severity:        severity,
			Recommendations: recommendationsFor(trend.Name),
			CreatedAt:       now,
		})
	}

	for _, anomaly := range anomalies {
		if !anomaly.Severity.AtLeast(models.SeverityHigh) {
			continue
		}
		insights = append(insights, models.Insight{
			ID:     e.nextInsightID(),
			Source: "anomaly",
			Title:  fmt.Sprintf("%s %s detected", anomaly.Name, anomaly.Type),
			Description: fmt.Sprintf("%s read %.2f against an expected %.2f (%.1fσ)",
				anomaly.Name, anomaly.Value, anomaly.Expected, anomaly.Deviation),
			Severity:        anomaly.Severity,
			Recommendations: recommendationsFor(anomaly.Name),
			CreatedAt:       now,
		})
	}

	return insights
}

// recommendationsFor keys recommendation text off well-known metric name
// substrings, falling back to generic advice.
func recommendationsFor(metricName string) []string {
	name := strings.ToLower(metricName)
	switch {
	case strings.Contains(name, "memory"):
		return []string{
			"Check for leaked buffers or unbounded caches",
			"Review recent changes to sample retention limits",
		}
	case strings.Contains(name, "cpu"):
		return []string{
			"Profile hot paths in stream processing",
			"Consider reducing the analysis frequency",
		}
	case strings.Contains(name, "latency"):
		return []string{
			"Check feed connectivity and upstream load",
			"Inspect the network path to the position feed",
		}
	case strings.Contains(name, "error"):
		return []string{
			"Inspect recent connection errors and validation failures",
			"Check upstream feed health",
		}
	default:
		return []string{
			"Review recent deployments for regressions",
			"Compare against the metric's historical baseline",
		}
	}
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
