package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/railstack/railwatch/internal/alerting"
	"github.com/railstack/railwatch/internal/analysis"
	"github.com/railstack/railwatch/internal/breaker"
	"github.com/railstack/railwatch/internal/collector"
	"github.com/railstack/railwatch/internal/config"
	"github.com/railstack/railwatch/internal/conn"
	"github.com/railstack/railwatch/internal/metrics"
	"github.com/railstack/railwatch/internal/models"
	"github.com/railstack/railwatch/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting railwatch", slog.String("endpoint", cfg.Feed.Endpoint))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	col := collector.New(cfg.Collector, utils.Named(logger, "collector"))
	brk := breaker.New(cfg.Breaker, utils.Named(logger, "breaker"))

	alerts := alerting.New(cfg.Alerting, utils.Named(logger, "alerting"), slogSink{logger: logger})
	engine := analysis.New(cfg.Analysis, utils.Named(logger, "analysis"), insightNotifier{alerts: alerts})

	feed := &simulatedFeed{
		interval: cfg.Feed.SampleInterval,
		handler: func(sample models.PositionSample, receivedAt time.Time) {
			col.RecordMessageReceived(sample, receivedAt)
		},
		invalid: col.RecordValidationFailure,
		logger:  utils.Named(logger, "feed"),
	}
	manager := conn.NewManager(cfg.Connection, feed, brk, alwaysUpNetwork{}, col, utils.Named(logger, "conn"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	engine.Start()
	alerts.Start()

	if err := manager.Connect(ctx, cfg.Feed.Endpoint); err != nil {
		// Retries are already scheduled internally; only terminal states need
		// operator attention.
		logger.Warn("initial connect failed", slog.Any("error", err))
	}

	go pumpSnapshots(ctx, col, manager, engine, alerts)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	manager.Close()
	engine.Stop()
	alerts.Stop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancel()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("railwatch stopped")
}

// pumpSnapshots feeds the collector's and connection manager's view of feed
// health into the analysis engine and raises a quality alert while the
// system is unhealthy.
func pumpSnapshots(ctx context.Context, col *collector.Collector, manager *conn.Manager, engine *analysis.Engine, alerts *alerting.System) {
	snapshotTicker := time.NewTicker(10 * time.Second)
	defer snapshotTicker.Stop()
	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-snapshotTicker.C:
			snap := col.Snapshot()
			engine.RecordMetric("feed_latency_ms", float64(snap.AverageLatency.Milliseconds()), now, nil)
			engine.RecordMetric("feed_throughput", snap.Throughput, now, nil)
			engine.RecordMetric("feed_error_rate", snap.ErrorRate, now, nil)
			engine.RecordMetric("feed_duplicates", float64(snap.DuplicateCount), now, nil)
			engine.RecordMetric("feed_out_of_order", float64(snap.OutOfOrderCount), now, nil)
			engine.RecordMetric("link_quality", manager.ConnectionStats().LinkQuality, now, nil)

			if !snap.Healthy {
				alerts.RaiseAlert(alerting.AlertRequest{
					Source:      "collector",
					Type:        "connection_quality",
					Severity:    models.SeverityMedium,
					Title:       "position feed degraded",
					Description: "error rate or latency above threshold, or feed disconnected",
				})
			}
		case <-cleanupTicker.C:
			alerts.CleanupOldData(24 * time.Hour)
		}
	}
}

// insightNotifier turns analysis insights into alerts.
type insightNotifier struct {
	alerts *alerting.System
}

func (n insightNotifier) Notify(insight models.Insight) {
	n.alerts.RaiseAlert(alerting.AlertRequest{
		Source:      "analysis",
		Type:        insight.Source,
		Severity:    insight.Severity,
		Title:       insight.Title,
		Description: insight.Description,
	})
}

// slogSink logs alert lifecycle events; a real deployment would page instead.
type slogSink struct {
	logger *slog.Logger
}

func (s slogSink) AlertRaised(alert models.Alert) {
	s.logger.Info("notification: alert raised",
		slog.String("alert_id", alert.ID),
		slog.String("severity", string(alert.Severity)),
		slog.String("title", alert.Title))
}

func (s slogSink) AlertEscalated(alert models.Alert, level int) {
	s.logger.Warn("notification: alert escalated",
		slog.String("alert_id", alert.ID),
		slog.Int("level", level))
}

func (s slogSink) AlertResolved(alert models.Alert) {
	s.logger.Info("notification: alert resolved",
		slog.String("alert_id", alert.ID),
		slog.String("resolution", alert.Resolution))
}
