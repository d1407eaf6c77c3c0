package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Target.Host != "127.0.0.1" || cfg.Target.Port != 8081 {
		t.Errorf("default target = %+v", cfg.Target)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("default poll interval = %v", cfg.PollInterval)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capsight.yaml")
	body := `
target:
  scheme: https
  host: bettercap.lan
  port: 443
  api_path: /api
poll_interval: 2s
event_window: 100
log_level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Target.Scheme != "https" || cfg.Target.Host != "bettercap.lan" || cfg.Target.Port != 443 {
		t.Errorf("target = %+v", cfg.Target)
	}
	if cfg.PollInterval != 2*time.Second || cfg.EventWindow != 100 {
		t.Errorf("cadence = %v/%d", cfg.PollInterval, cfg.EventWindow)
	}
	// Untouched fields keep their defaults.
	if cfg.StatePath != "capsight.db" {
		t.Errorf("state path = %q", cfg.StatePath)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad scheme", "target:\n  scheme: ftp\n  host: h\n  port: 80\n"},
		{"bad port", "target:\n  scheme: http\n  host: h\n  port: 99999\n"},
		{"missing host", "target:\n  scheme: http\n  host: \"\"\n  port: 80\n"},
		{"zero interval", "poll_interval: 0s\n"},
		{"zero window", "event_window: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			os.WriteFile(path, []byte(tt.body), 0o600)
			if _, err := LoadConfig(path); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}
