package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != "8090" {
		t.Errorf("HTTPPort = %q, want 8090", cfg.HTTPPort)
	}
	if cfg.MarkerTTL != 3*time.Hour {
		t.Errorf("MarkerTTL = %v, want 3h", cfg.MarkerTTL)
	}
	if cfg.HostPollInterval != 2*time.Second || cfg.StatusPollInterval != 3*time.Second || cfg.RoomPollInterval != 5*time.Second {
		t.Errorf("poll intervals = %v/%v/%v", cfg.HostPollInterval, cfg.StatusPollInterval, cfg.RoomPollInterval)
	}
	if cfg.ReadRetries != 3 || cfg.ReadRetryBackoff != 500*time.Millisecond {
		t.Errorf("retries = %d/%v", cfg.ReadRetries, cfg.ReadRetryBackoff)
	}
	if cfg.WhiteboardFlush != 100*time.Millisecond {
		t.Errorf("WhiteboardFlush = %v", cfg.WhiteboardFlush)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9000")
	t.Setenv("SESSION_MARKER_TTL", "90m")
	t.Setenv("HOST_POLL_INTERVAL", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != "9000" {
		t.Errorf("HTTPPort = %q", cfg.HTTPPort)
	}
	if cfg.MarkerTTL != 90*time.Minute {
		t.Errorf("MarkerTTL = %v", cfg.MarkerTTL)
	}
	if cfg.HostPollInterval != 250*time.Millisecond {
		t.Errorf("HostPollInterval = %v", cfg.HostPollInterval)
	}
}

func TestValidate(t *testing.T) {
	cfg, _ := Load()
	cfg.DB.Host = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing DB_HOST should fail validation")
	}

	cfg, _ = Load()
	cfg.AppEnv = "production"
	cfg.DB.Password = ""
	if err := cfg.Validate(); err == nil {
		t.Error("production without DB password should fail validation")
	}

	cfg, _ = Load()
	cfg.ReadRetries = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero read retries should fail validation")
	}
}

func TestConnectionStrings(t *testing.T) {
	cfg, _ := Load()
	cfg.DB.Password = "p@ss word"
	dsn := cfg.DSN()
	if dsn == "" || cfg.Addr() == "" {
		t.Fatal("empty DSN or addr")
	}
	url := cfg.DatabaseURL()
	if !strings.Contains(url, "p%40ss+word") {
		t.Errorf("DatabaseURL = %q, password not escaped", url)
	}
}
