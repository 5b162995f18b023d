package collector

import (
	"errors"
	"testing"
	"time"

	"github.com/railstack/railwatch/internal/models"
)

func mustSample(t *testing.T, entity string, lat, lng float64, ts time.Time) models.PositionSample {
	t.Helper()
	s, err := models.NewPositionSample(entity, lat, lng, 120, 90, ts, "section-7")
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	return s
}

func TestLatencyComputation(t *testing.T) {
	c := New(DefaultConfig(), nil)
	ts := time.Now()
	sample := mustSample(t, "ice-401", 52.5, 13.4, ts)

	c.RecordMessageReceived(sample, ts.Add(250*time.Millisecond))

	snap := c.Snapshot()
	if snap.TotalMessages != 1 {
		t.Fatalf("expected 1 message, got %d", snap.TotalMessages)
	}
	if snap.AverageLatency != 250*time.Millisecond {
		t.Fatalf("expected latency 250ms, got %v", snap.AverageLatency)
	}
}

func TestDuplicateDetection(t *testing.T) {
	c := New(DefaultConfig(), nil)
	ts := time.Now()
	sample := mustSample(t, "ice-401", 52.5, 13.4, ts)

	c.RecordMessageReceived(sample, ts)
	c.RecordMessageReceived(sample, ts.Add(time.Second))

	snap := c.Snapshot()
	if snap.DuplicateCount != 1 {
		t.Fatalf("expected 1 duplicate, got %d", snap.DuplicateCount)
	}
	if snap.OutOfOrderCount != 0 {
		t.Fatalf("expected no out-of-order, got %d", snap.OutOfOrderCount)
	}
}

func TestOutOfOrderDetection(t *testing.T) {
	c := New(DefaultConfig(), nil)
	ts := time.Now()

	c.RecordMessageReceived(mustSample(t, "ice-401", 52.5, 13.4, ts), ts)
	c.RecordMessageReceived(mustSample(t, "ice-401", 52.6, 13.5, ts.Add(-time.Second)), ts.Add(time.Second))

	snap := c.Snapshot()
	if snap.OutOfOrderCount != 1 {
		t.Fatalf("expected 1 out-of-order, got %d", snap.OutOfOrderCount)
	}
	if snap.DuplicateCount != 0 {
		t.Fatalf("expected no duplicates, got %d", snap.DuplicateCount)
	}
}

func TestSeparateEntitiesDoNotInterfere(t *testing.T) {
	c := New(DefaultConfig(), nil)
	ts := time.Now()

	c.RecordMessageReceived(mustSample(t, "ice-401", 52.5, 13.4, ts), ts)
	c.RecordMessageReceived(mustSample(t, "re-77", 52.5, 13.4, ts), ts)

	snap := c.Snapshot()
	if snap.DuplicateCount != 0 || snap.OutOfOrderCount != 0 {
		t.Fatalf("expected clean counters across entities, got dup=%d ooo=%d", snap.DuplicateCount, snap.OutOfOrderCount)
	}
}

func TestErrorRateAndHealth(t *testing.T) {
	c := New(DefaultConfig(), nil)
	c.SetConnected(true)
	ts := time.Now()

	for i := 0; i < 20; i++ {
		c.RecordMessageReceived(mustSample(t, "ice-401", 52.5, 13.4, ts.Add(time.Duration(i)*time.Second)), ts.Add(time.Duration(i)*time.Second))
	}
	if !c.IsSystemHealthy() {
		t.Fatalf("expected healthy with no errors")
	}

	c.RecordConnectionError(errors.New("reset by peer"))
	c.RecordValidationFailure()

	snap := c.Snapshot()
	if snap.ErrorRate != 2.0/20.0 {
		t.Fatalf("expected error rate 0.1, got %f", snap.ErrorRate)
	}
	if snap.Healthy {
		t.Fatalf("expected unhealthy at 10%% error rate")
	}
}

func TestHealthRequiresConnection(t *testing.T) {
	c := New(DefaultConfig(), nil)
	ts := time.Now()
	c.RecordMessageReceived(mustSample(t, "ice-401", 52.5, 13.4, ts), ts)

	if c.IsSystemHealthy() {
		t.Fatalf("expected unhealthy while disconnected")
	}
	c.SetConnected(true)
	if !c.IsSystemHealthy() {
		t.Fatalf("expected healthy once connected")
	}
}

func TestHighLatencyUnhealthy(t *testing.T) {
	c := New(DefaultConfig(), nil)
	c.SetConnected(true)
	ts := time.Now()
	c.RecordMessageReceived(mustSample(t, "ice-401", 52.5, 13.4, ts), ts.Add(3*time.Second))

	if c.IsSystemHealthy() {
		t.Fatalf("expected unhealthy with 3s average latency")
	}
}

func TestSecurityCounters(t *testing.T) {
	c := New(DefaultConfig(), nil)
	c.RecordSecurityAnomaly()
	c.RecordSuspiciousPattern()

	snap := c.Snapshot()
	if snap.SecurityAnomalies != 1 || snap.SuspiciousPatterns != 1 {
		t.Fatalf("expected security counters 1/1, got %d/%d", snap.SecurityAnomalies, snap.SuspiciousPatterns)
	}
	if snap.LastSecurityEvent.IsZero() {
		t.Fatalf("expected last security event timestamp set")
	}
}

func TestReset(t *testing.T) {
	c := New(DefaultConfig(), nil)
	ts := time.Now()
	c.RecordMessageReceived(mustSample(t, "ice-401", 52.5, 13.4, ts), ts)
	c.RecordConnectionError(errors.New("boom"))

	c.Reset()

	snap := c.Snapshot()
	if snap.TotalMessages != 0 || snap.ConnectionErrors != 0 || snap.AverageLatency != 0 {
		t.Fatalf("expected zeroed snapshot after reset: %+v", snap)
	}
}
