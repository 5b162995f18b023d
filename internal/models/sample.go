package models

import (
	"fmt"
	"time"
)

// Domain bounds for a position report. Speed ceiling reflects the fastest
// in-service rolling stock with headroom.
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
	MaxSpeedKmh  = 300.0
	MaxHeading   = 360.0
)

// PositionSample is a single position report for a moving train. Samples are
// immutable once constructed; construction validates every field and fails
// instead of clamping.
type PositionSample struct {
	EntityID        string
	Latitude        float64
	Longitude       float64
	Speed           float64
	Heading         float64
	Timestamp       time.Time
	SourceSectionID string
	Accuracy        float64
	HasAccuracy     bool
}

// NewPositionSample validates and constructs a PositionSample.
func NewPositionSample(entityID string, latitude, longitude, speed, heading float64, timestamp time.Time, sourceSectionID string) (PositionSample, error) {
	if entityID == "" {
		return PositionSample{}, fmt.Errorf("position sample: entity id is required")
	}
	if timestamp.IsZero() {
		return PositionSample{}, fmt.Errorf("position sample: timestamp is required")
	}
	if latitude < MinLatitude || latitude > MaxLatitude {
		return PositionSample{}, fmt.Errorf("position sample: latitude %.4f out of range [%.0f,%.0f]", latitude, MinLatitude, MaxLatitude)
	}
	if longitude < MinLongitude || longitude > MaxLongitude {
		return PositionSample{}, fmt.Errorf("position sample: longitude %.4f out of range [%.0f,%.0f]", longitude, MinLongitude, MaxLongitude)
	}
	if speed < 0 || speed > MaxSpeedKmh {
		return PositionSample{}, fmt.Errorf("position sample: speed %.1f out of range [0,%.0f]", speed, MaxSpeedKmh)
	}
	if heading < 0 || heading > MaxHeading {
		return PositionSample{}, fmt.Errorf("position sample: heading %.1f out of range [0,%.0f]", heading, MaxHeading)
	}

	return PositionSample{
		EntityID:        entityID,
		Latitude:        latitude,
		Longitude:       longitude,
		Speed:           speed,
		Heading:         heading,
		Timestamp:       timestamp,
		SourceSectionID: sourceSectionID,
	}, nil
}

// WithAccuracy returns a copy of the sample carrying a reported accuracy in
// metres. Negative accuracy is rejected.
func (s PositionSample) WithAccuracy(metres float64) (PositionSample, error) {
	if metres < 0 {
		return PositionSample{}, fmt.Errorf("position sample: accuracy %.1f must be non-negative", metres)
	}
	s.Accuracy = metres
	s.HasAccuracy = true
	return s, nil
}
