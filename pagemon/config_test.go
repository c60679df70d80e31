package pagemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
registry: monitor/targets.csv
db_path: state/snapshots.db
notify_errors: true
fetch:
  timeout: 15s
  max_bytes: 2097152
  allow_private: true
summary:
  strategy: readability
  max_links: 10
notify:
  rate_per_second: 0.5
  burst: 2
  username: pagemon
schedule:
  cron: "*/30 * * * *"
  run_on_start: true
`

func TestParseConfig(t *testing.T) {
	// WHAT: Every documented key decodes, durations included.
	cfg, err := ParseConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Registry != "monitor/targets.csv" || cfg.DBPath != "state/snapshots.db" || !cfg.NotifyErrors {
		t.Errorf("top level: %+v", cfg)
	}
	if cfg.Fetch.Timeout != 15*time.Second || cfg.Fetch.MaxBytes != 2<<20 || !cfg.Fetch.AllowPrivate {
		t.Errorf("fetch: %+v", cfg.Fetch)
	}
	if cfg.Summary.Strategy != "readability" || cfg.Summary.MaxLinks != 10 {
		t.Errorf("summary: %+v", cfg.Summary)
	}
	if cfg.Notify.RatePerSecond != 0.5 || cfg.Notify.Burst != 2 || cfg.Notify.Username != "pagemon" {
		t.Errorf("notify: %+v", cfg.Notify)
	}
	if cfg.Schedule.Cron != "*/30 * * * *" || !cfg.Schedule.RunOnStart {
		t.Errorf("schedule: %+v", cfg.Schedule)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig(nil)
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if cfg.Registry != "targets.csv" || cfg.DBPath != "state/pagemon.db" || cfg.LogLevel != "info" {
		t.Errorf("defaults: %+v", cfg)
	}
	if cfg.Summary.Strategy != "landmarks" || cfg.Summary.MaxLinks != 20 {
		t.Errorf("summary defaults: %+v", cfg.Summary)
	}
}

func TestParseConfig_UnknownKey(t *testing.T) {
	// WHAT: Typos in the config file are errors.
	// WHY: A misspelled webhook key would silently disable notifications.
	_, err := ParseConfig([]byte("webhook: https://example.com\n"))
	if err == nil || !strings.Contains(err.Error(), "webhook") {
		t.Fatalf("got %v, want unknown field error", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagemon.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil || cfg.Registry != "monitor/targets.csv" {
		t.Fatalf("load: %+v %v", cfg, err)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
	if cfg, err := LoadConfig(""); err != nil || cfg.DBPath == "" {
		t.Errorf("empty path: %+v %v", cfg, err)
	}
}

func TestApplyEnv(t *testing.T) {
	// WHAT: Environment values override the file; empty values do not.
	cfg := DefaultConfig()
	cfg.WebhookURL = "https://file.example.com/hook"
	env := map[string]string{
		EnvWebhookURL: "https://discord.com/api/webhooks/1/abc",
		EnvDB:         "/var/lib/pagemon/pagemon.db",
		EnvLogLevel:   "",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.WebhookURL != "https://discord.com/api/webhooks/1/abc" {
		t.Errorf("webhook: %q", cfg.WebhookURL)
	}
	if cfg.DBPath != "/var/lib/pagemon/pagemon.db" {
		t.Errorf("db: %q", cfg.DBPath)
	}
	if cfg.Registry != "targets.csv" || cfg.LogLevel != "info" {
		t.Errorf("unset values changed: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty registry", func(c *Config) { c.Registry = " " }},
		{"empty db", func(c *Config) { c.DBPath = "" }},
		{"bad webhook scheme", func(c *Config) { c.WebhookURL = "javascript:alert(1)" }},
		{"bad strategy", func(c *Config) { c.Summary.Strategy = "everything" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad cron", func(c *Config) { c.Schedule.Cron = "every day" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}
