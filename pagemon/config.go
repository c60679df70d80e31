package pagemon

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pagemon/extract"
	"github.com/hazyhaar/pagemon/horosafe"
	"github.com/hazyhaar/pagemon/pagemon/internal/fetch"
	"github.com/hazyhaar/pagemon/pagemon/internal/notify"
	"github.com/hazyhaar/pagemon/pagemon/internal/scheduler"
)

// Environment variables read by the CLI.
const (
	EnvWebhookURL = "DISCORD_WEBHOOK_URL"
	EnvRegistry   = "PAGEMON_REGISTRY"
	EnvDB         = "PAGEMON_DB"
	EnvLogLevel   = "LOG_LEVEL"
)

// Config configures a Monitor.
type Config struct {
	// Registry is the CSV file listing targets.
	Registry string `yaml:"registry"`
	// DBPath is the SQLite snapshot file, kept between runs.
	DBPath string `yaml:"db_path"`
	// WebhookURL receives notifications. Empty disables them.
	WebhookURL string `yaml:"webhook_url"`
	// NotifyErrors reports fetch and parse failures to the webhook too.
	NotifyErrors bool `yaml:"notify_errors"`
	// LogLevel is debug, info, warn or error. Read by the CLI.
	LogLevel string `yaml:"log_level"`

	Fetch    fetch.Config           `yaml:"fetch"`
	Summary  extract.SummaryOptions `yaml:"summary"`
	Notify   notify.Config          `yaml:"notify"`
	Schedule scheduler.Config       `yaml:"schedule"`
}

func (c *Config) defaults() {
	if c.Registry == "" {
		c.Registry = "targets.csv"
	}
	if c.DBPath == "" {
		c.DBPath = "state/pagemon.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Summary.Strategy == "" {
		c.Summary.Strategy = extract.StrategyLandmarks
	}
	if c.Summary.MaxLinks <= 0 {
		c.Summary.MaxLinks = 20
	}
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// LoadConfig reads a YAML config file. An empty path yields the defaults.
// Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config data and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.defaults()
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up through
// getenv (os.Getenv in the CLI). Empty values are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvWebhookURL); v != "" {
		c.WebhookURL = v
	}
	if v := getenv(EnvRegistry); v != "" {
		c.Registry = v
	}
	if v := getenv(EnvDB); v != "" {
		c.DBPath = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Registry) == "" {
		return errors.New("config: registry path is empty")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("config: db_path is empty")
	}
	if c.WebhookURL != "" {
		if _, err := horosafe.CheckScheme(c.WebhookURL); err != nil {
			return fmt.Errorf("config: webhook_url: %w", err)
		}
	}
	if err := c.Summary.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	if c.Schedule.Cron != "" {
		if err := scheduler.Validate(c.Schedule.Cron); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}
