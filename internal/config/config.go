package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/railstack/railwatch/internal/alerting"
	"github.com/railstack/railwatch/internal/analysis"
	"github.com/railstack/railwatch/internal/breaker"
	"github.com/railstack/railwatch/internal/collector"
	"github.com/railstack/railwatch/internal/conn"
)

// Config captures the settings required to boot the railwatch service.
type Config struct {
	Feed       FeedConfig       `yaml:"feed"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Breaker    breaker.Config   `yaml:"breaker"`
	Connection conn.Config      `yaml:"connection"`
	Collector  collector.Config `yaml:"collector"`
	Analysis   analysis.Config  `yaml:"analysis"`
	Alerting   alerting.Config  `yaml:"alerting"`
}

// FeedConfig points at the position feed to consume.
type FeedConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	SampleInterval time.Duration `yaml:"sampleInterval"`
}

// ServerConfig controls the observability listener.
type ServerConfig struct {
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("RAILWATCH_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Feed: FeedConfig{
			Endpoint:       "feed://local",
			SampleInterval: time.Second,
		},
		Server: ServerConfig{
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging:    LoggingConfig{Level: "info", JSON: false},
		Breaker:    breaker.DefaultConfig(),
		Connection: conn.DefaultConfig(),
		Collector:  collector.DefaultConfig(),
		Analysis:   analysis.DefaultConfig(),
		Alerting:   alerting.DefaultConfig(),
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAILWATCH_FEED_ENDPOINT"); v != "" {
		cfg.Feed.Endpoint = v
	}
	if v := os.Getenv("RAILWATCH_FEED_SAMPLE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Feed.SampleInterval = d
		}
	}
	if v := os.Getenv("RAILWATCH_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("RAILWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RAILWATCH_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("RAILWATCH_BREAKER_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Breaker.FailureThreshold = n
		}
	}
	if v := os.Getenv("RAILWATCH_BREAKER_OPEN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Breaker.OpenTimeout = d
		}
	}
	if v := os.Getenv("RAILWATCH_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Connection.ConnectTimeout = d
		}
	}
	if v := os.Getenv("RAILWATCH_HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Connection.HeartbeatInterval = d
		}
	}
	if v := os.Getenv("RAILWATCH_MAX_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Connection.MaxRetryAttempts = n
		}
	}
	if v := os.Getenv("RAILWATCH_LATENCY_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Collector.LatencyWindowSize = n
		}
	}
	if v := os.Getenv("RAILWATCH_ERROR_RATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Collector.ErrorRateThreshold = f
		}
	}
	if v := os.Getenv("RAILWATCH_ANALYSIS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analysis.Interval = d
		}
	}
	if v := os.Getenv("RAILWATCH_ANOMALY_Z_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.AnomalyZThreshold = f
		}
	}
	if v := os.Getenv("RAILWATCH_SUPPRESSION_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerting.SuppressionWindow = d
		}
	}
	if v := os.Getenv("RAILWATCH_ESCALATION_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerting.EscalationDelay = d
		}
	}
	if v := os.Getenv("RAILWATCH_ALERT_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Alerting.HistoryLimit = n
		}
	}
}
