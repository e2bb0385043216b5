// Package config loads and hot-reloads the engine's server.yml.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode is the deploy posture, development or production.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// DetectMode resolves mode from config, then MODE/APP_MODE/ENVIRONMENT env
// vars, then defaults to production.
func DetectMode(configMode string) Mode {
	if m := normalizeMode(configMode); m != "" {
		return m
	}
	for _, env := range []string{"MODE", "APP_MODE", "ENVIRONMENT"} {
		if m := normalizeMode(os.Getenv(env)); m != "" {
			return m
		}
	}
	return ModeProduction
}

func normalizeMode(raw string) Mode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "development", "dev":
		return ModeDevelopment
	case "production", "prod":
		return ModeProduction
	default:
		return ""
	}
}

// QueueConfig tunes the priority queue and scheduled-set sweep.
type QueueConfig struct {
	// JournalPath is where the durable enqueue/dequeue journal is written.
	JournalPath string `yaml:"journal_path"`
	// AgingInterval is how long a priority tier may wait with entries queued
	// before the queue promotes it one slot, to prevent starvation of lower
	// tiers.
	AgingInterval time.Duration `yaml:"aging_interval"`
	// ScheduledSweepInterval is not read by the engine; the scheduled sweep
	// runs on the scheduler's scheduled_sweep entry.
	ScheduledSweepInterval time.Duration `yaml:"scheduled_sweep_interval"`
}

// RetryConfig holds the retry settings. Only DefaultMaxRetries is read by
// the engine: backoff follows the fixed table in the retry package, the
// retry sweep runs on the scheduler's retry_sweep entry, and BaseDelay,
// MaxDelay, Jitter and SweepInterval are not applied.
type RetryConfig struct {
	DefaultMaxRetries int           `yaml:"default_max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	Jitter            float64       `yaml:"jitter"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
}

// RateLimitConfig tunes per-channel token buckets.
type RateLimitConfig struct {
	PerChannel map[string]ChannelRateLimit `yaml:"per_channel"`
}

// ChannelRateLimit is a single channel's token-bucket parameters.
type ChannelRateLimit struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// BreakerConfig tunes per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenDuration     time.Duration `yaml:"open_duration"`
	HalfOpenProbes   int           `yaml:"half_open_probes"`
}

// MetricsConfig holds rollup retention and flush settings. The engine does
// not read these fields: metrics_prune keeps fixed windows (24h minute,
// 30d hour, 1y day) and flushing runs on the scheduler's metrics_flush
// entry.
type MetricsConfig struct {
	MinuteRetention time.Duration `yaml:"minute_retention"`
	HourRetention   time.Duration `yaml:"hour_retention"`
	DayRetention    time.Duration `yaml:"day_retention"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
}

// TemplateConfig tunes the renderer's cache.
type TemplateConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// ChannelConfig is the operator-facing enable/secret map per channel.
type ChannelConfig struct {
	Enabled bool              `yaml:"enabled"`
	Options map[string]string `yaml:"options"`
}

// SchedulerConfig maps named background sweeps to cron expressions.
type SchedulerConfig struct {
	Tasks map[string]string `yaml:"tasks"`
}

// DatabaseConfig selects the store driver and DSN.
type DatabaseConfig struct {
	// Driver is one of "sqlite", "postgres", "mysql", "mssql".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ServerConfig is the HTTP admission surface.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Config is the root configuration loaded from server.yml.
type Config struct {
	Mode      string                   `yaml:"mode"`
	Server    ServerConfig             `yaml:"server"`
	Database  DatabaseConfig           `yaml:"database"`
	Queue     QueueConfig              `yaml:"queue"`
	Retry     RetryConfig              `yaml:"retry"`
	RateLimit RateLimitConfig          `yaml:"rate_limit"`
	Breaker   BreakerConfig            `yaml:"breaker"`
	Metrics   MetricsConfig            `yaml:"metrics"`
	Template  TemplateConfig           `yaml:"template"`
	Channels  map[string]ChannelConfig `yaml:"channels"`
	Scheduler SchedulerConfig          `yaml:"scheduler"`
	Redis     RedisConfig              `yaml:"redis"`
}

// RedisConfig configures the optional shared rate-limit backend.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns a config with the engine's built-in defaults, used when
// server.yml omits a section or is absent entirely.
func Default() *Config {
	return &Config{
		Mode: string(ModeProduction),
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8088,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "./data/notifyengine.db",
		},
		Queue: QueueConfig{
			JournalPath:            "./data/queue.journal",
			AgingInterval:          30 * time.Second,
			ScheduledSweepInterval: 10 * time.Second,
		},
		Retry: RetryConfig{
			DefaultMaxRetries: 3,
			BaseDelay:         30 * time.Second,
			MaxDelay:          1 * time.Hour,
			Jitter:            0.2,
			SweepInterval:     15 * time.Second,
		},
		// Per-channel defaults convert the engine's per-minute budgets
		// (email 100/min, sms 50/min, push 1000/min, in_app 2000/min,
		// webhook 200/min) to the token bucket's per-second refill rate;
		// burst caps are set per channel on their own (20, 10, 100, 200, 50).
		RateLimit: RateLimitConfig{
			PerChannel: map[string]ChannelRateLimit{
				"email":   {RatePerSecond: 100.0 / 60, Burst: 20},
				"sms":     {RatePerSecond: 50.0 / 60, Burst: 10},
				"push":    {RatePerSecond: 1000.0 / 60, Burst: 100},
				"in_app":  {RatePerSecond: 2000.0 / 60, Burst: 200},
				"webhook": {RatePerSecond: 200.0 / 60, Burst: 50},
			},
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenDuration:     1 * time.Minute,
			HalfOpenProbes:   1,
		},
		Metrics: MetricsConfig{
			MinuteRetention: 24 * time.Hour,
			HourRetention:   30 * 24 * time.Hour,
			DayRetention:    365 * 24 * time.Hour,
			FlushInterval:   10 * time.Second,
		},
		Template: TemplateConfig{
			CacheTTL: 5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Tasks: map[string]string{
				"scheduled_sweep":    "@every 10s",
				"retry_sweep":        "@every 15s",
				"daily_batch":        "0 0 * * *",
				"weekly_batch":       "0 0 * * 1",
				"metrics_flush":      "@every 10s",
				"metrics_rollup_hour": "@hourly",
				"metrics_rollup_day":  "0 0 * * *",
				"metrics_prune":       "0 1 * * *",
				"expire_sweep":        "@every 5m",
				"inbox_cleanup":       "0 2 * * *",
				"delivery_cleanup":    "0 3 * * *",
			},
		},
	}
}

// Load reads and merges server.yml at path over the built-in defaults. A
// missing file is not an error; it just returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Posture derives the mode-specific behavior flags the rest of the engine
// gates on: CORS laxness, verbose logging, debug endpoints.
type Posture struct {
	Mode           Mode
	VerboseLogging bool
	DebugEnabled   bool
	CORSAllowAll   bool
}

// NewPosture derives a Posture from a resolved Mode.
func NewPosture(mode Mode) Posture {
	if mode == ModeDevelopment {
		return Posture{Mode: mode, VerboseLogging: true, DebugEnabled: true, CORSAllowAll: true}
	}
	return Posture{Mode: mode, VerboseLogging: false, DebugEnabled: false, CORSAllowAll: false}
}
