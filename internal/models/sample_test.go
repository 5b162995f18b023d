package models

import (
	"testing"
	"time"
)

func TestNewPositionSampleValid(t *testing.T) {
	s, err := NewPositionSample("ice-401", 52.52, 13.405, 160, 270, time.Now(), "section-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.EntityID != "ice-401" || s.SourceSectionID != "section-7" {
		t.Fatalf("fields not carried: %+v", s)
	}
}

func TestNewPositionSampleRejectsOutOfRange(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name                     string
		lat, lng, speed, heading float64
	}{
		{"latitude high", 91, 0, 0, 0},
		{"latitude low", -91, 0, 0, 0},
		{"longitude high", 0, 181, 0, 0},
		{"longitude low", 0, -181, 0, 0},
		{"speed negative", 0, 0, -1, 0},
		{"speed too fast", 0, 0, 301, 0},
		{"heading negative", 0, 0, 0, -1},
		{"heading too large", 0, 0, 0, 361},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPositionSample("ice-401", tc.lat, tc.lng, tc.speed, tc.heading, now, ""); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestNewPositionSampleRequiresIdentityAndTime(t *testing.T) {
	if _, err := NewPositionSample("", 0, 0, 0, 0, time.Now(), ""); err == nil {
		t.Fatalf("expected error for empty entity id")
	}
	if _, err := NewPositionSample("ice-401", 0, 0, 0, 0, time.Time{}, ""); err == nil {
		t.Fatalf("expected error for zero timestamp")
	}
}

func TestWithAccuracy(t *testing.T) {
	s, err := NewPositionSample("ice-401", 52.52, 13.405, 160, 270, time.Now(), "")
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	withAcc, err := s.WithAccuracy(12.5)
	if err != nil {
		t.Fatalf("accuracy: %v", err)
	}
	if !withAcc.HasAccuracy || withAcc.Accuracy != 12.5 {
		t.Fatalf("accuracy not applied: %+v", withAcc)
	}
	if s.HasAccuracy {
		t.Fatalf("original sample mutated")
	}
	if _, err := s.WithAccuracy(-1); err == nil {
		t.Fatalf("expected error for negative accuracy")
	}
}

func TestSeverityAtLeast(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityHigh) {
		t.Fatalf("critical should rank above high")
	}
	if SeverityLow.AtLeast(SeverityMedium) {
		t.Fatalf("low should rank below medium")
	}
	if !SeverityHigh.AtLeast(SeverityHigh) {
		t.Fatalf("severity should rank at least itself")
	}
}
