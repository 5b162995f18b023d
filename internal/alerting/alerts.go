package alerting

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/railstack/railwatch/internal/metrics"
	"github.com/railstack/railwatch/internal/models"
	"github.com/railstack/railwatch/internal/utils"
)

// Config holds the alerting tunables.
type Config struct {
	SuppressionWindow time.Duration `yaml:"suppressionWindow"`
	HistoryLimit      int           `yaml:"historyLimit"`
	EscalationTick    time.Duration `yaml:"escalationTick"`
	EscalationDelay   time.Duration `yaml:"escalationDelay"`
}

// DefaultConfig returns the standard alerting tunables.
func DefaultConfig() Config {
	return Config{
		SuppressionWindow: 2 * time.Minute,
		HistoryLimit:      1000,
		EscalationTick:    30 * time.Second,
		EscalationDelay:   5 * time.Minute,
	}
}

func (c *Config) normalise() {
	def := DefaultConfig()
	if c.SuppressionWindow <= 0 {
		c.SuppressionWindow = def.SuppressionWindow
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	if c.EscalationTick <= 0 {
		c.EscalationTick = def.EscalationTick
	}
	if c.EscalationDelay <= 0 {
		c.EscalationDelay = def.EscalationDelay
	}
}

// AlertRequest carries everything needed to raise an alert. RequiresAck
// overrides the acknowledgment default (severity at HIGH or above) when set.
type AlertRequest struct {
	Source      string
	Type        string
	Severity    models.Severity
	Title       string
	Description string
	Metadata    map[string]string
	RequiresAck *bool
}

// NotificationSink receives alert lifecycle events. Implementations must not
// call back into the System. A nil sink disables delivery.
type NotificationSink interface {
	AlertRaised(alert models.Alert)
	AlertEscalated(alert models.Alert, level int)
	AlertResolved(alert models.Alert)
}

// escalationState tracks the escalation ladder of one alert requiring
// acknowledgment.
type escalationState struct {
	alertID         string
	startedAt       time.Time
	level           int
	maxLevel        int
	active          bool
	lastEscalatedAt time.Time
	acknowledgedBy  string
	resolvedBy      string
}

// Statistics is a point-in-time summary of alerting activity.
type Statistics struct {
	Active                int
	CriticalActive        int
	HighActive            int
	RaisedToday           int
	Acknowledged          int
	Resolved              int
	MeanResolutionMinutes float64
	Escalated             int
}

// System raises, suppresses, escalates, and resolves alerts. All state is
// in-memory and guarded by a single mutex; notifications and Prometheus
// updates happen outside the lock.
type System struct {
	mu          sync.Mutex
	cfg         Config
	logger      *slog.Logger
	sink        NotificationSink
	active      map[string]*models.Alert
	history     []*models.Alert
	escalations map[string]*escalationState
	suppression *suppressionStore
	seq         atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// New constructs a System. The sink may be nil.
func New(cfg Config, logger *slog.Logger, sink NotificationSink) *System {
	cfg.normalise()
	if logger == nil {
		logger = slog.Default()
	}
	return &System{
		cfg:         cfg,
		logger:      logger,
		sink:        sink,
		active:      make(map[string]*models.Alert),
		escalations: make(map[string]*escalationState),
		suppression: newSuppressionStore(),
		now:         time.Now,
	}
}

// RaiseAlert records a new alert unless the suppression window drops it.
// It returns the alert ID and whether the alert was actually raised. Internal
// panics are logged and reported as a non-raise, never propagated.
func (s *System) RaiseAlert(req AlertRequest) (id string, raised bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("alert processing panicked", slog.Any("panic", r))
			id, raised = "", false
		}
	}()

	if req.Severity == "" {
		req.Severity = models.SeverityLow
	}
	if req.Title == "" {
		req.Title = req.Type
	}

	now := s.now()
	key := suppressionKey(req.Source, req.Type, req.Title)

	if isNoisy(req) && s.suppression.Seen(key, now) {
		metrics.ObserveAlertSuppressed()
		s.logger.Debug("alert suppressed",
			slog.String("source", req.Source),
			slog.String("type", req.Type),
			slog.String("title", req.Title))
		return "", false
	}
	s.suppression.Mark(key, now, s.cfg.SuppressionWindow)

	requiresAck := req.Severity.AtLeast(models.SeverityHigh)
	if req.RequiresAck != nil {
		requiresAck = *req.RequiresAck
	}

	alert := &models.Alert{
		ID:          fmt.Sprintf("alert-%d", s.seq.Add(1)),
		Source:      req.Source,
		Type:        req.Type,
		Severity:    req.Severity,
		Title:       req.Title,
		Description: req.Description,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		Status:      models.AlertActive,
		RequiresAck: requiresAck,
	}

	s.mu.Lock()
	s.active[alert.ID] = alert
	s.history = append(s.history, alert)
	if len(s.history) > s.cfg.HistoryLimit {
		s.history = s.history[len(s.history)-s.cfg.HistoryLimit:]
	}
	if alert.RequiresAck {
		esc := &escalationState{
			alertID:   alert.ID,
			startedAt: now,
			maxLevel:  maxLevelFor(alert.Severity),
			active:    true,
		}
		// Critical alerts skip the initial delay.
		if alert.Severity == models.SeverityCritical {
			esc.level = 1
			esc.lastEscalatedAt = now
			alert.EscalationLevel = 1
		}
		s.escalations[alert.ID] = esc
	}
	raisedCopy := copyAlert(alert)
	s.mu.Unlock()

	metrics.ObserveAlertRaised(string(raisedCopy.Severity))
	s.logRaised(raisedCopy)
	if s.sink != nil {
		s.sink.AlertRaised(raisedCopy)
		if raisedCopy.EscalationLevel > 0 {
			s.sink.AlertEscalated(raisedCopy, raisedCopy.EscalationLevel)
		}
	}
	return raisedCopy.ID, true
}

// AcknowledgeAlert marks an active alert as acknowledged and halts its
// escalation ladder.
func (s *System) AcknowledgeAlert(id, by, notes string) error {
	now := s.now()

	s.mu.Lock()
	alert, ok := s.active[id]
	if !ok {
		s.mu.Unlock()
		return utils.NewAppError("alerting.acknowledge", "unknown alert "+id, nil)
	}
	alert.Status = models.AlertAcknowledged
	alert.AcknowledgedBy = by
	alert.AcknowledgedAt = now
	alert.AckNotes = notes
	if esc, ok := s.escalations[id]; ok {
		esc.active = false
		esc.acknowledgedBy = by
	}
	s.mu.Unlock()

	s.logger.Info("alert acknowledged",
		slog.String("alert_id", id),
		slog.String("by", by))
	return nil
}

// ResolveAlert closes an alert and removes it from the active set. Resolving
// an alert that is already resolved is a no-op.
func (s *System) ResolveAlert(id, by, resolution string) error {
	now := s.now()

	s.mu.Lock()
	alert, ok := s.active[id]
	if !ok {
		for _, h := range s.history {
			if h.ID == id && h.Status == models.AlertResolved {
				s.mu.Unlock()
				return nil
			}
		}
		s.mu.Unlock()
		return utils.NewAppError("alerting.resolve", "unknown alert "+id, nil)
	}
	alert.Status = models.AlertResolved
	alert.ResolvedBy = by
	alert.ResolvedAt = now
	alert.Resolution = resolution
	delete(s.active, id)
	if esc, ok := s.escalations[id]; ok {
		esc.active = false
		esc.resolvedBy = by
	}
	resolvedCopy := copyAlert(alert)
	s.mu.Unlock()

	s.logger.Info("alert resolved",
		slog.String("alert_id", id),
		slog.String("by", by))
	if s.sink != nil {
		s.sink.AlertResolved(resolvedCopy)
	}
	return nil
}

// Start launches the periodic escalation loop.
func (s *System) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop cancels the escalation loop and waits for it to exit.
func (s *System) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *System) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.EscalationTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.escalateDue()
		}
	}
}

// escalateDue advances every active escalation whose delay has elapsed and
// whose ladder still has headroom.
func (s *System) escalateDue() {
	now := s.now()

	type bumped struct {
		alert models.Alert
		level int
	}
	var due []bumped

	s.mu.Lock()
	for id, esc := range s.escalations {
		if !esc.active || esc.level >= esc.maxLevel {
			continue
		}
		since := esc.startedAt
		if !esc.lastEscalatedAt.IsZero() {
			since = esc.lastEscalatedAt
		}
		if now.Sub(since) < s.cfg.EscalationDelay {
			continue
		}
		esc.level++
		esc.lastEscalatedAt = now
		if alert, ok := s.active[id]; ok {
			alert.EscalationLevel = esc.level
			due = append(due, bumped{alert: copyAlert(alert), level: esc.level})
		}
	}
	s.mu.Unlock()

	for _, b := range due {
		s.logger.Warn("alert escalated",
			slog.String("alert_id", b.alert.ID),
			slog.Int("level", b.level))
		if s.sink != nil {
			s.sink.AlertEscalated(b.alert, b.level)
		}
	}
}

// ActiveAlerts returns copies of all currently active alerts.
func (s *System) ActiveAlerts() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Alert, 0, len(s.active))
	for _, alert := range s.active {
		out = append(out, copyAlert(alert))
	}
	return out
}

// History returns copies of the retained alert history, oldest first.
func (s *System) History() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Alert, 0, len(s.history))
	for _, alert := range s.history {
		out = append(out, copyAlert(alert))
	}
	return out
}

// Statistics summarizes alerting activity over the retained history.
func (s *System) Statistics() Statistics {
	now := s.now()
	midnight := utils.StartOfDay(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Statistics{Active: len(s.active)}
	for _, alert := range s.active {
		switch alert.Severity {
		case models.SeverityCritical:
			stats.CriticalActive++
		case models.SeverityHigh:
			stats.HighActive++
		}
	}

	var resolutionMinutes float64
	for _, alert := range s.history {
		if !alert.CreatedAt.Before(midnight) {
			stats.RaisedToday++
		}
		if !alert.AcknowledgedAt.IsZero() {
			stats.Acknowledged++
		}
		if alert.Status == models.AlertResolved {
			stats.Resolved++
			resolutionMinutes += utils.DurationMinutes(alert.CreatedAt, alert.ResolvedAt)
		}
		if alert.EscalationLevel > 0 {
			stats.Escalated++
		}
	}
	if stats.Resolved > 0 {
		stats.MeanResolutionMinutes = resolutionMinutes / float64(stats.Resolved)
	}
	return stats
}

// CleanupOldData drops expired suppression entries and inactive escalation
// records older than the cutoff. It returns how many records were removed.
func (s *System) CleanupOldData(olderThan time.Duration) int {
	now := s.now()
	removed := s.suppression.Purge(now)

	cutoff := now.Add(-olderThan)
	s.mu.Lock()
	for id, esc := range s.escalations {
		if !esc.active && esc.startedAt.Before(cutoff) {
			delete(s.escalations, id)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}

func (s *System) logRaised(alert models.Alert) {
	attrs := []any{
		slog.String("alert_id", alert.ID),
		slog.String("source", alert.Source),
		slog.String("type", alert.Type),
		slog.String("severity", string(alert.Severity)),
		slog.String("title", alert.Title),
	}
	switch alert.Severity {
	case models.SeverityCritical:
		s.logger.Error("alert raised", attrs...)
	case models.SeverityHigh:
		s.logger.Warn("alert raised", attrs...)
	default:
		s.logger.Info("alert raised", attrs...)
	}
}

// suppressionKey fingerprints an alert as source|type|hash(title) so repeats
// of the same condition collapse onto one key.
func suppressionKey(source, typ, title string) string {
	h := fnv.New32a()
	h.Write([]byte(title))
	return fmt.Sprintf("%s|%s|%08x", source, typ, h.Sum32())
}

// isNoisy reports whether the request belongs to a chatty category that the
// suppression window should dampen. High and critical alerts always pass.
func isNoisy(req AlertRequest) bool {
	if req.Severity.AtLeast(models.SeverityHigh) {
		return false
	}
	t := strings.ToLower(req.Type)
	return strings.Contains(t, "performance") ||
		strings.Contains(t, "memory") ||
		strings.Contains(t, "connection")
}

func maxLevelFor(severity models.Severity) int {
	switch severity {
	case models.SeverityCritical:
		return 3
	case models.SeverityHigh:
		return 2
	case models.SeverityMedium:
		return 1
	default:
		return 0
	}
}

func copyAlert(alert *models.Alert) models.Alert {
	out := *alert
	if alert.Metadata != nil {
		out.Metadata = make(map[string]string, len(alert.Metadata))
		for k, v := range alert.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
