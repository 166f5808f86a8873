package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vibemon/internal/api"
	"vibemon/internal/livesync"
	"vibemon/internal/notify"
	"vibemon/internal/pushconn"
)

// Config is the user configuration in ~/.vibemon/config.yaml.
type Config struct {
	BaseURL        string   `yaml:"baseUrl"`
	Transport      string   `yaml:"transport"`
	RequestTimeout Duration `yaml:"requestTimeout"`
	Limit          int      `yaml:"limit"`
	Window         string   `yaml:"window"`
	LogFile        string   `yaml:"logFile,omitempty"`
	LogLevel       string   `yaml:"logLevel,omitempty"`
	Live           Live     `yaml:"live"`
	Notify         Notify   `yaml:"notify"`
}

// Live holds the live-sync timings.
type Live struct {
	MaxAttempts        int      `yaml:"maxAttempts"`
	ReconnectBase      Duration `yaml:"reconnectBase"`
	ReconnectMax       Duration `yaml:"reconnectMax"`
	Watchdog           Duration `yaml:"watchdog"`
	ConnectCeiling     Duration `yaml:"connectCeiling"`
	RetryDelay         Duration `yaml:"retryDelay"`
	VisibilityThrottle Duration `yaml:"visibilityThrottle"`
	SummaryInterval    Duration `yaml:"summaryInterval"`
	PushThrottle       Duration `yaml:"pushThrottle"`
	OpenCooldown       Duration `yaml:"openCooldown"`
	PollInterval       Duration `yaml:"pollInterval"`
}

// Notify selects where alerts go. Nothing is sent unless a sender is
// configured.
type Notify struct {
	Desktop  bool     `yaml:"desktop"`
	Webhook  string   `yaml:"webhook,omitempty"`
	Format   string   `yaml:"webhookFormat,omitempty"`
	Template string   `yaml:"webhookTemplate,omitempty"`
	Script   string   `yaml:"script,omitempty"`
	Cooldown Duration `yaml:"cooldown"`
	// Digest is a cron schedule ("0 9 * * *") for a usage summary of
	// DigestWindow.
	Digest       string `yaml:"digest,omitempty"`
	DigestWindow string `yaml:"digestWindow,omitempty"`
}

// Duration is a time.Duration written as "5s" in YAML.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := parseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// parseDuration accepts Go durations and bare milliseconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// ConfigPath is the file LoadConfig and SaveConfig use.
var ConfigPath string

func init() {
	ConfigPath = filepath.Join(Dir(), "config.yaml")
}

// Dir returns ~/.vibemon, or VIBEMON_HOME when set.
func Dir() string {
	if d := os.Getenv("VIBEMON_HOME"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vibemon"
	}
	return filepath.Join(home, ".vibemon")
}

// Default returns the built-in configuration.
func Default() *Config {
	p := pushconn.DefaultPolicy()
	return &Config{
		BaseURL:        api.DefaultBaseURL,
		Transport:      string(pushconn.TransportSSE),
		RequestTimeout: Duration(livesync.DefaultFetchTimeout),
		Limit:          50,
		Window:         livesync.CurrentWindow,
		Live: Live{
			MaxAttempts:        p.MaxAttempts,
			ReconnectBase:      Duration(p.BaseDelay),
			ReconnectMax:       Duration(p.MaxDelay),
			Watchdog:           Duration(p.WatchdogInterval),
			ConnectCeiling:     Duration(p.ConnectCeiling),
			RetryDelay:         Duration(livesync.DefaultRetryDelay),
			VisibilityThrottle: Duration(livesync.DefaultVisibilityThrottle),
			SummaryInterval:    Duration(livesync.DefaultSummaryInterval),
			PushThrottle:       Duration(livesync.DefaultPushThrottle),
			OpenCooldown:       Duration(livesync.DefaultOpenCooldown),
			PollInterval:       Duration(livesync.DefaultPollInterval),
		},
		Notify: Notify{
			Format:       notify.FormatSlack,
			Cooldown:     Duration(notify.DefaultCooldown),
			DigestWindow: notify.DefaultDigestWindow,
		},
	}
}

// LoadConfig reads ConfigPath over the defaults and applies VIBEMON_*
// environment overrides. A missing file is not an error.
func LoadConfig() (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(ConfigPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", ConfigPath, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg to ConfigPath.
func SaveConfig(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(ConfigPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(ConfigPath, data, 0o644)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"VIBEMON_BASE_URL":  &c.BaseURL,
		"VIBEMON_TRANSPORT": &c.Transport,
		"VIBEMON_WINDOW":    &c.Window,
		"VIBEMON_LOG_FILE":  &c.LogFile,
		"VIBEMON_LOG_LEVEL": &c.LogLevel,

		"VIBEMON_NOTIFY_WEBHOOK": &c.Notify.Webhook,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("VIBEMON_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VIBEMON_LIMIT: %w", err)
		}
		c.Limit = n
	}
	if v, ok := lookup("VIBEMON_REQUEST_TIMEOUT"); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("VIBEMON_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = Duration(d)
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := pushconn.ParseTransport(c.Transport); err != nil {
		return err
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", c.Limit)
	}
	if c.Live.MaxAttempts < 0 {
		return fmt.Errorf("live.maxAttempts must not be negative, got %d", c.Live.MaxAttempts)
	}
	switch c.Notify.Format {
	case "", notify.FormatSlack, notify.FormatFeishu, notify.FormatDingTalk:
	case notify.FormatCustom:
		if c.Notify.Webhook != "" && c.Notify.Template == "" {
			return fmt.Errorf("notify.webhookTemplate is required for the custom format")
		}
	default:
		return fmt.Errorf("unknown notify.webhookFormat %q", c.Notify.Format)
	}
	if c.Notify.Digest != "" {
		if err := notify.ValidateSchedule(c.Notify.Digest); err != nil {
			return err
		}
	}
	return nil
}

// Policy returns the reconnect policy for the push connection.
func (l Live) Policy() pushconn.Policy {
	def := pushconn.DefaultPolicy()
	p := pushconn.Policy{
		MaxAttempts:      l.MaxAttempts,
		BaseDelay:        or(l.ReconnectBase, def.BaseDelay),
		MaxDelay:         or(l.ReconnectMax, def.MaxDelay),
		WatchdogInterval: or(l.Watchdog, def.WatchdogInterval),
		ConnectCeiling:   or(l.ConnectCeiling, def.ConnectCeiling),
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	return p
}

func or(d Duration, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d.D()
}
