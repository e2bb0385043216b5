package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name       string
		configMode string
		envVars    map[string]string
		want       Mode
	}{
		{name: "config development", configMode: "development", want: ModeDevelopment},
		{name: "config dev", configMode: "dev", want: ModeDevelopment},
		{name: "config production", configMode: "production", want: ModeProduction},
		{name: "config prod", configMode: "prod", want: ModeProduction},
		{name: "empty defaults to production", configMode: "", want: ModeProduction},
		{name: "env MODE development", configMode: "", envVars: map[string]string{"MODE": "development"}, want: ModeDevelopment},
		{name: "env APP_MODE production", configMode: "", envVars: map[string]string{"APP_MODE": "production"}, want: ModeProduction},
		{name: "config takes precedence over env", configMode: "production", envVars: map[string]string{"MODE": "development"}, want: ModeProduction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"MODE", "APP_MODE", "ENVIRONMENT"} {
				os.Unsetenv(k)
			}
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}
			if got := DetectMode(tt.configMode); got != tt.want {
				t.Errorf("DetectMode(%q) = %v, want %v", tt.configMode, got, tt.want)
			}
		})
	}
}

func TestNewPostureDevelopmentIsPermissive(t *testing.T) {
	p := NewPosture(ModeDevelopment)
	if !p.DebugEnabled || !p.CORSAllowAll || !p.VerboseLogging {
		t.Errorf("expected development posture to be permissive, got %+v", p)
	}
}

func TestNewPostureProductionIsStrict(t *testing.T) {
	p := NewPosture(ModeProduction)
	if p.DebugEnabled || p.CORSAllowAll || p.VerboseLogging {
		t.Errorf("expected production posture to be strict, got %+v", p)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err != nil {
		t.Fatalf("expected missing config file to be non-fatal, got %v", err)
	}
	if cfg.Server.Port != Default().Server.Port {
		t.Errorf("expected defaults when config file is absent, got %+v", cfg)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yml")
	yamlContent := "server:\n  host: 127.0.0.1\n  port: 9999\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 || cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected overridden server block, got %+v", cfg.Server)
	}
	if cfg.Database.Driver != Default().Database.Driver {
		t.Errorf("expected untouched sections to keep their defaults, got %+v", cfg.Database)
	}
}

func TestDefaultRateLimitsConvertPerMinuteToPerSecond(t *testing.T) {
	cfg := Default()
	email := cfg.RateLimit.PerChannel["email"]
	if email.RatePerSecond != 100.0/60 {
		t.Errorf("expected email rate 100/min converted to per-second, got %v", email.RatePerSecond)
	}
}
