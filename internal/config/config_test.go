package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vibemon/internal/api"
)

func withConfigPath(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	orig := ConfigPath
	ConfigPath = path
	t.Cleanup(func() { ConfigPath = orig })
}

func TestLoadConfigMissingFile(t *testing.T) {
	withConfigPath(t, "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.BaseURL != api.DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, api.DefaultBaseURL)
	}
	if cfg.Transport != "sse" {
		t.Errorf("Transport = %q, want sse", cfg.Transport)
	}
	p := cfg.Live.Policy()
	if p.MaxAttempts != 5 || p.BaseDelay != 2*time.Second || p.MaxDelay != 30*time.Second {
		t.Errorf("Policy = %+v", p)
	}
	if p.WatchdogInterval != 5*time.Second || p.ConnectCeiling != 45*time.Second {
		t.Errorf("Policy = %+v", p)
	}
	if cfg.Live.PushThrottle.D() != 5*time.Second || cfg.Live.PollInterval.D() != time.Minute {
		t.Errorf("Live = %+v", cfg.Live)
	}
}

func TestLoadConfigOverlaysFile(t *testing.T) {
	withConfigPath(t, `
baseUrl: http://monitor.local:9000
transport: ws
limit: 20
live:
  pushThrottle: 10s
  openCooldown: 1500
  maxAttempts: 3
notify:
  desktop: true
  webhook: https://hooks.example.com/T000
  webhookFormat: feishu
`)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.BaseURL != "http://monitor.local:9000" || cfg.Limit != 20 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Live.PushThrottle.D() != 10*time.Second {
		t.Errorf("PushThrottle = %v, want 10s", cfg.Live.PushThrottle.D())
	}
	if cfg.Live.OpenCooldown.D() != 1500*time.Millisecond {
		t.Errorf("OpenCooldown = %v, want 1.5s", cfg.Live.OpenCooldown.D())
	}
	if cfg.Live.Policy().MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Live.Policy().MaxAttempts)
	}
	if !cfg.Notify.Desktop || cfg.Notify.Format != "feishu" || cfg.Notify.Webhook != "https://hooks.example.com/T000" {
		t.Errorf("Notify = %+v", cfg.Notify)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Live.SummaryInterval.D() != time.Minute {
		t.Errorf("SummaryInterval = %v, want 1m", cfg.Live.SummaryInterval.D())
	}
	if cfg.Notify.Cooldown.D() != 2*time.Minute {
		t.Errorf("Notify.Cooldown = %v, want 2m", cfg.Notify.Cooldown.D())
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "baseUrl: [unclosed"},
		{"bad duration", "live:\n  pollInterval: soon\n"},
		{"bad transport", "transport: carrier-pigeon\n"},
		{"negative limit", "limit: -1\n"},
		{"bad webhook format", "notify:\n  webhookFormat: pager\n"},
		{"bad digest schedule", "notify:\n  digest: daily-ish\n"},
		{"custom webhook without template", "notify:\n  webhook: http://hooks.local\n  webhookFormat: custom\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withConfigPath(t, tt.content)
			if _, err := LoadConfig(); err == nil {
				t.Error("LoadConfig() error = nil, want error")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"VIBEMON_BASE_URL":        "https://proxy.example.com",
		"VIBEMON_LIMIT":           "100",
		"VIBEMON_REQUEST_TIMEOUT": "30s",
		"VIBEMON_WINDOW":          "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.BaseURL != "https://proxy.example.com" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Limit != 100 {
		t.Errorf("Limit = %d, want 100", cfg.Limit)
	}
	if cfg.RequestTimeout.D() != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout.D())
	}
	if cfg.Window != "current" {
		t.Errorf("empty env var overrode Window: %q", cfg.Window)
	}

	env["VIBEMON_LIMIT"] = "lots"
	if err := Default().applyEnv(lookup); err == nil {
		t.Error("applyEnv accepted a non-numeric limit")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	withConfigPath(t, "")
	cfg := Default()
	cfg.Transport = "websocket"
	cfg.Live.PollInterval = Duration(90 * time.Second)
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	data, err := os.ReadFile(ConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if want := "pollInterval: 1m30s"; !strings.Contains(string(data), want) {
		t.Errorf("saved config missing %q:\n%s", want, data)
	}

	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.Transport != "websocket" || got.Live.PollInterval.D() != 90*time.Second {
		t.Errorf("reloaded = %+v", got)
	}
}
