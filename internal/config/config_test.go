package config_test

import (
	"testing"

	"github.com/affinidi/webvh-server/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no webvh-server.yaml here; exercise pure defaults

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want 0.0.0.0", cfg.Host)
	}
	if cfg.Port != 8085 {
		t.Errorf("Port = %d, want 8085", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
	if cfg.StoreBackend != config.StoreBackendBolt {
		t.Errorf("StoreBackend = %q, want bolt", cfg.StoreBackend)
	}
	if cfg.ChallengeTTLSec != 300 {
		t.Errorf("ChallengeTTLSec = %d, want 300", cfg.ChallengeTTLSec)
	}
	if got, want := cfg.ListenAddr(), "0.0.0.0:8085"; got != want {
		t.Errorf("ListenAddr() = %q, want %q", got, want)
	}
}

func TestLoadEnvironmentOverridesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WEBVH_PORT", "9999")
	t.Setenv("WEBVH_LOG_LEVEL", "debug")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999 (env override)", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug (env override)", cfg.LogLevel)
	}
}
