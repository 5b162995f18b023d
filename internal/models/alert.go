package models

import "time"

// Severity captures impact levels, ordered from low to critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is at or above the given severity. Unknown
// severities rank below low.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// AlertStatus tracks an alert through its lifecycle.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Alert is an operator-facing notification. Alerts are created by the
// alerting system and mutated only through acknowledge/resolve/escalation.
type Alert struct {
	ID              string
	Source          string
	Type            string
	Severity        Severity
	Title           string
	Description     string
	Metadata        map[string]string
	CreatedAt       time.Time
	Status          AlertStatus
	RequiresAck     bool
	EscalationLevel int
	AcknowledgedBy  string
	AcknowledgedAt  time.Time
	AckNotes        string
	ResolvedBy      string
	ResolvedAt      time.Time
	Resolution      string
}
