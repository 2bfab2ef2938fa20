package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Content  ContentConfig  `yaml:"content"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Related  RelatedConfig  `yaml:"related"`
	AI       AIConfig       `yaml:"ai"`
	Notify   NotifyConfig   `yaml:"notify"`
	Import   ImportConfig   `yaml:"import"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Submit   SubmitConfig   `yaml:"submit"`
	Log      LogConfig      `yaml:"log"`
}

// ContentConfig points at the markdown library.
type ContentConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port    int    `yaml:"port"`
	SiteURL string `yaml:"site_url"` // public URL used in notification links
}

// RelatedConfig configures related-page scoring.
type RelatedConfig struct {
	Limit           int     `yaml:"limit"`
	MaxReasons      int     `yaml:"max_reasons"`
	SharedTagWeight float64 `yaml:"shared_tag_weight"`
	TagPrefixWeight float64 `yaml:"tag_prefix_weight"`
	CategoryWeight  float64 `yaml:"category_weight"`
}

// AIConfig configures the optional content generator for submissions.
type AIConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // "openai", "perplexity" or "anthropic"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"` // custom endpoint (optional)
	Timeout  string `yaml:"timeout"`
}

// ParseTimeout returns the request timeout as time.Duration.
func (a AIConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(a.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// NotifyConfig configures editor notifications.
type NotifyConfig struct {
	Resend  ResendConfig  `yaml:"resend"`
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// ResendConfig for email via Resend.
type ResendConfig struct {
	Enabled bool     `yaml:"enabled"`
	APIKey  string   `yaml:"api_key"`
	From    string   `yaml:"from"`
	To      []string `yaml:"to"`
}

// SlackConfig for Slack webhook notifications.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook notifications.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook notifications.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ImportConfig configures the RSS/Atom article importer.
type ImportConfig struct {
	Enabled         bool       `yaml:"enabled"`
	Feeds           []FeedItem `yaml:"feeds"`
	MaxAge          string     `yaml:"max_age"`
	Keywords        []string   `yaml:"keywords"`
	ExcludeKeywords []string   `yaml:"exclude_keywords"`
	Concurrency     int        `yaml:"concurrency"`
}

// ParseMaxAge returns how old an entry may be before it is skipped.
func (i ImportConfig) ParseMaxAge() time.Duration {
	d, err := time.ParseDuration(i.MaxAge)
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// FeedItem is a single feed entry.
type FeedItem struct {
	Name string   `yaml:"name"`
	URL  string   `yaml:"url"`
	Tags []string `yaml:"tags"`
}

// ScheduleConfig configures background intervals.
type ScheduleConfig struct {
	ImportInterval string `yaml:"import_interval"`
	WatchDebounce  string `yaml:"watch_debounce"`
}

// ParseImportInterval returns the import interval as time.Duration.
func (s ScheduleConfig) ParseImportInterval() time.Duration {
	d, err := time.ParseDuration(s.ImportInterval)
	if err != nil || d <= 0 {
		return 6 * time.Hour
	}
	return d
}

// ParseWatchDebounce returns the content watcher debounce as time.Duration.
func (s ScheduleConfig) ParseWatchDebounce() time.Duration {
	d, err := time.ParseDuration(s.WatchDebounce)
	if err != nil || d <= 0 {
		return 250 * time.Millisecond
	}
	return d
}

// SubmitConfig configures the submission form.
type SubmitConfig struct {
	MaxAttachmentMB   int      `yaml:"max_attachment_mb"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// MaxAttachmentBytes returns the per-file upload limit.
func (s SubmitConfig) MaxAttachmentBytes() int64 {
	if s.MaxAttachmentMB <= 0 {
		return 10 << 20
	}
	return int64(s.MaxAttachmentMB) << 20
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Content:  ContentConfig{Dir: "./content", Watch: true},
		Database: DatabaseConfig{Path: "./atlas.db"},
		Server:   ServerConfig{Port: 8080},
		Related: RelatedConfig{
			Limit:           5,
			MaxReasons:      2,
			SharedTagWeight: 3,
			TagPrefixWeight: 0,
			CategoryWeight:  1,
		},
		AI: AIConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  "60s",
		},
		Notify: NotifyConfig{
			Resend: ResendConfig{From: "Sustainability Atlas <atlas@example.org>"},
		},
		Import: ImportConfig{
			Enabled: false,
			MaxAge:  "168h",
			Feeds: []FeedItem{
				{Name: "Grist", URL: "https://grist.org/feed/", Tags: []string{"climate"}},
				{Name: "Carbon Brief", URL: "https://www.carbonbrief.org/feed/", Tags: []string{"climate", "policy"}},
				{Name: "Ellen MacArthur Foundation", URL: "https://www.ellenmacarthurfoundation.org/rss", Tags: []string{"circular-economy"}},
			},
			Concurrency: 4,
		},
		Schedule: ScheduleConfig{
			ImportInterval: "6h",
			WatchDebounce:  "250ms",
		},
		Submit: SubmitConfig{
			MaxAttachmentMB:   10,
			AllowedExtensions: []string{".pdf", ".docx", ".doc", ".txt", ".md", ".png", ".jpg", ".jpeg"},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATLAS_CONTENT_DIR"); v != "" {
		cfg.Content.Dir = v
	}
	if v := os.Getenv("ATLAS_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ATLAS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ATLAS_SITE_URL"); v != "" {
		cfg.Server.SiteURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
		cfg.AI.Enabled = true
		cfg.AI.Provider = "openai"
	}
	if v := os.Getenv("PERPLEXITY_API_KEY"); v != "" {
		cfg.AI.APIKey = v
		cfg.AI.Enabled = true
		cfg.AI.Provider = "perplexity"
		if cfg.AI.Model == "gpt-4o-mini" {
			cfg.AI.Model = ""
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AI.APIKey = v
		cfg.AI.Enabled = true
		cfg.AI.Provider = "anthropic"
		if cfg.AI.Model == "gpt-4o-mini" {
			cfg.AI.Model = ""
		}
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		cfg.Notify.Resend.APIKey = v
		cfg.Notify.Resend.Enabled = true
	}
	if v := os.Getenv("ATLAS_NOTIFY_EMAIL"); v != "" {
		cfg.Notify.Resend.To = splitList(v)
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notify.Slack.WebhookURL = v
		cfg.Notify.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Notify.Discord.WebhookURL = v
		cfg.Notify.Discord.Enabled = true
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
