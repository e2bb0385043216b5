package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yml")
	if err := os.WriteFile(path, []byte("mode: development\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) error {
		reloaded <- cfg
		return nil
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("mode: production\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Mode != "production" {
			t.Errorf("reloaded Mode = %q, want production", cfg.Mode)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected reloadFunc to fire after debounced file write")
	}
}

func TestDiffTunablesReportsChangedRateLimit(t *testing.T) {
	old := &Config{RateLimit: RateLimitConfig{PerChannel: map[string]ChannelRateLimit{
		"email": {RatePerSecond: 1, Burst: 10},
	}}}
	next := &Config{RateLimit: RateLimitConfig{PerChannel: map[string]ChannelRateLimit{
		"email": {RatePerSecond: 2, Burst: 10},
	}}}

	changes := diffTunables(old, next)
	if len(changes) != 1 || changes[0] == "" {
		t.Fatalf("diffTunables = %v, want one rate-limit change", changes)
	}
}

func TestDiffTunablesReportsNewAndRemovedChannels(t *testing.T) {
	old := &Config{RateLimit: RateLimitConfig{PerChannel: map[string]ChannelRateLimit{
		"sms": {RatePerSecond: 1, Burst: 1},
	}}}
	next := &Config{RateLimit: RateLimitConfig{PerChannel: map[string]ChannelRateLimit{
		"email": {RatePerSecond: 1, Burst: 1},
	}}}

	changes := diffTunables(old, next)
	if len(changes) != 2 {
		t.Fatalf("diffTunables = %v, want one removal and one addition", changes)
	}
}

func TestDiffTunablesReportsBreakerChange(t *testing.T) {
	old := &Config{Breaker: BreakerConfig{FailureThreshold: 5, OpenDuration: time.Minute}}
	next := &Config{Breaker: BreakerConfig{FailureThreshold: 10, OpenDuration: time.Minute}}

	changes := diffTunables(old, next)
	if len(changes) != 1 {
		t.Fatalf("diffTunables = %v, want one breaker change", changes)
	}
}

func TestDiffTunablesNoChangeReportsNothing(t *testing.T) {
	cfg := &Config{
		RateLimit: RateLimitConfig{PerChannel: map[string]ChannelRateLimit{"email": {RatePerSecond: 1, Burst: 1}}},
		Breaker:   BreakerConfig{FailureThreshold: 5, OpenDuration: time.Minute},
	}
	if changes := diffTunables(cfg, cfg); len(changes) != 0 {
		t.Errorf("diffTunables(cfg, cfg) = %v, want no changes", changes)
	}
}

func TestDiffTunablesNilBaselineReportsEverythingAsNew(t *testing.T) {
	next := &Config{RateLimit: RateLimitConfig{PerChannel: map[string]ChannelRateLimit{
		"email": {RatePerSecond: 1, Burst: 1},
	}}}
	changes := diffTunables(nil, next)
	if len(changes) != 1 {
		t.Fatalf("diffTunables(nil, next) = %v, want one new-channel entry", changes)
	}
}
