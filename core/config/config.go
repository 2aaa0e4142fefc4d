package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram transport settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// CompositorConfig tunes image compositing.
type CompositorConfig struct {
	// FontPath points to a TrueType/OpenType font; empty means system candidates.
	FontPath string  `yaml:"font_path" envconfig:"COMPOSITOR_FONT_PATH"`
	FontSize float64 `yaml:"font_size" envconfig:"COMPOSITOR_FONT_SIZE"`
	// Workers bounds concurrent composites; 0 -> NumCPU.
	Workers   int `yaml:"workers" envconfig:"COMPOSITOR_WORKERS"`
	MaxPixels int `yaml:"max_pixels" envconfig:"COMPOSITOR_MAX_PIXELS"`
	// MaxLabelRunes caps the label length accepted from users.
	MaxLabelRunes int `yaml:"max_label_runes" envconfig:"COMPOSITOR_MAX_LABEL_RUNES"`
}

// ShareConfig enables reposting results to a group or channel.
type ShareConfig struct {
	// ChatID is a numeric chat id or a public @username; empty disables sharing.
	ChatID string `yaml:"chat_id" envconfig:"SHARE_CHAT_ID"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is a host:port for /metrics and /healthz; empty disables it.
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

// DatabaseConfig holds optional Postgres settings for merge history.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// Enabled reports whether a database was configured.
func (d DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(d.Host) != ""
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

const (
	DefaultFontSize      = 20
	DefaultMaxPixels     = 40_000_000
	DefaultMaxLabelRunes = 64
	DefaultRateBurst     = 3
)

// RateLimitConfig holds settings for rate limiting. Each user may send Burst
// updates back to back, then one per IntervalMS.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	Burst          int      `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the bot configuration.
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Logging    LoggingConfig    `yaml:"logging"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Compositor CompositorConfig `yaml:"compositor"`
	Share      ShareConfig      `yaml:"share"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Database   DatabaseConfig   `yaml:"database"`
}

// Load reads configuration from a YAML file and environment variables.
// A missing file is tolerated so the bot can be configured from env alone.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := Normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads only the database section. It does not require a bot
// token, so migrations can run from a deploy job.
func LoadDatabase(path string) (DatabaseConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if !cfg.Database.Enabled() {
		return DatabaseConfig{}, errors.New("database.host is not configured")
	}
	if err := normalizeDatabase(&cfg.Database); err != nil {
		return DatabaseConfig{}, err
	}
	return cfg.Database, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults. Every invalid setting is
// reported, joined into one error.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	errs := []error{
		normalizeTelegram(&cfg.Telegram, cfg.Webhook),
		normalizeRateLimit(&cfg.RateLimit),
		normalizeCompositor(&cfg.Compositor),
	}
	cfg.Share.ChatID = strings.TrimSpace(cfg.Share.ChatID)
	if cfg.Database.Enabled() {
		errs = append(errs, normalizeDatabase(&cfg.Database))
	}
	return errors.Join(errs...)
}

func normalizeTelegram(t *TelegramConfig, wh WebhookConfig) error {
	var errs []error
	if t.Token == "" {
		errs = append(errs, errors.New("telegram token is required"))
	}
	switch mode := strings.ToLower(strings.TrimSpace(t.RunMode)); mode {
	case "", "polling", RunModeLongpoll:
		t.RunMode = RunModeLongpoll
		if t.LongPollTimeoutSeconds < 0 {
			errs = append(errs, errors.New("telegram.longpoll_timeout_seconds must be >= 0"))
		}
	case RunModeWebhook:
		t.RunMode = mode
		if strings.TrimSpace(wh.URL) == "" {
			errs = append(errs, errors.New("webhook.url is required in webhook mode"))
		}
		if strings.TrimSpace(wh.Listen) == "" {
			errs = append(errs, errors.New("webhook.listen is required in webhook mode"))
		}
		if wh.Port <= 0 {
			errs = append(errs, errors.New("webhook.port must be > 0 in webhook mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", t.RunMode))
	}
	return errors.Join(errs...)
}

func normalizeRateLimit(r *RateLimitConfig) error {
	if r.IntervalMS < 0 {
		return errors.New("rate_limit.interval_ms must be >= 0")
	}
	switch {
	case r.Burst < 0:
		return errors.New("rate_limit.burst must be >= 0")
	case r.Burst == 0:
		r.Burst = DefaultRateBurst
	}
	for i, v := range r.ExcludeUpdates {
		switch key := strings.ToLower(strings.TrimSpace(v)); key {
		case "":
		case UpdateCallback, UpdateMessage, UpdateInlineQuery:
			r.ExcludeUpdates[i] = key
		default:
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
	}
	return nil
}

func normalizeDatabase(d *DatabaseConfig) error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("database.name is required when database.host is set")
	}
	if d.Port == "" {
		d.Port = "5432"
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.MaxConnections <= 0 {
		d.MaxConnections = 4
	}
	if d.MigrationsDir == "" {
		d.MigrationsDir = "migrations"
	}
	return nil
}

func normalizeCompositor(c *CompositorConfig) error {
	if c.FontSize < 0 || c.Workers < 0 || c.MaxPixels < 0 || c.MaxLabelRunes < 0 {
		return errors.New("compositor settings must be >= 0")
	}
	if c.FontSize == 0 {
		c.FontSize = DefaultFontSize
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.MaxPixels == 0 {
		c.MaxPixels = DefaultMaxPixels
	}
	if c.MaxLabelRunes == 0 {
		c.MaxLabelRunes = DefaultMaxLabelRunes
	}
	c.FontPath = strings.TrimSpace(c.FontPath)
	return nil
}
