// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Frontier FrontierConfig `mapstructure:"frontier"`
	Dedup    DedupConfig    `mapstructure:"dedup"`
	DB       DBConfig       `mapstructure:"db"`
	Blob     BlobConfig     `mapstructure:"blob"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP management API behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the fetch worker pool and retry behavior.
type CrawlerConfig struct {
	MaxConcurrentRequests int               `mapstructure:"max_concurrent_requests"`
	RequestTimeoutSeconds int               `mapstructure:"request_timeout_seconds"`
	MaxRetries            int               `mapstructure:"max_retries"`
	WorkerCount           int               `mapstructure:"worker_count"`
	UserAgent             string            `mapstructure:"user_agent"`
	CustomHeaders         map[string]string `mapstructure:"custom_headers"`
}

// FrontierConfig governs URL admission, scheduling, and politeness.
type FrontierConfig struct {
	PolitenessDelaySeconds float64  `mapstructure:"politeness_delay_seconds"`
	BatchSize              int      `mapstructure:"batch_size"`
	AllowedDomains         []string `mapstructure:"allowed_domains"`
	ExcludedDomains        []string `mapstructure:"excluded_domains"`
	DomainRPS              float64  `mapstructure:"domain_rps"`
}

// DedupConfig sizes the probabilistic seen-URL filter.
type DedupConfig struct {
	Capacity                uint    `mapstructure:"capacity"`
	FalsePositiveRate       float64 `mapstructure:"false_positive_rate"`
	SnapshotIntervalSeconds int     `mapstructure:"snapshot_interval_seconds"`
}

// DBConfig controls access to the relational frontier store.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// BlobConfig sets paths and content types for raw page persistence.
type BlobConfig struct {
	Provider    string `mapstructure:"provider"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	BaseDir     string `mapstructure:"base_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for completion event publishing.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig selects the zap profile and minimum level.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBFRONTIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.max_concurrent_requests", 100)
	v.SetDefault("crawler.request_timeout_seconds", 30)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.worker_count", 5)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; webfrontier/1.0; +https://github.com/kbryner/webfrontier)")
	v.SetDefault("frontier.politeness_delay_seconds", 1.0)
	v.SetDefault("frontier.batch_size", 100)
	v.SetDefault("frontier.domain_rps", 0)
	v.SetDefault("dedup.capacity", 10_000_000)
	v.SetDefault("dedup.false_positive_rate", 0.001)
	v.SetDefault("dedup.snapshot_interval_seconds", 300)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("blob.provider", "local")
	v.SetDefault("blob.base_dir", "data/pages")
	v.SetDefault("blob.prefix", "pages")
	v.SetDefault("blob.content_type", "text/html; charset=utf-8")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("crawler.max_concurrent_requests must be > 0")
	}
	if c.Crawler.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.request_timeout_seconds must be > 0")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if c.Crawler.WorkerCount <= 0 {
		return fmt.Errorf("crawler.worker_count must be > 0")
	}
	if c.Frontier.PolitenessDelaySeconds < 0 {
		return fmt.Errorf("frontier.politeness_delay_seconds must be >= 0")
	}
	if c.Frontier.BatchSize <= 0 {
		return fmt.Errorf("frontier.batch_size must be > 0")
	}
	if c.Dedup.Capacity == 0 {
		return fmt.Errorf("dedup.capacity must be > 0")
	}
	if c.Dedup.FalsePositiveRate <= 0 || c.Dedup.FalsePositiveRate >= 1 {
		return fmt.Errorf("dedup.false_positive_rate must be in (0, 1)")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db.provider is postgres")
	}
	if c.Blob.Provider == "gcs" && c.Blob.GCSBucket == "" {
		return fmt.Errorf("blob.gcs_bucket must be set when blob.provider is gcs")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// RequestTimeout converts the configured request timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawler.RequestTimeoutSeconds) * time.Second
}

// PolitenessDelay converts the configured politeness delay into a duration.
func (c Config) PolitenessDelay() time.Duration {
	return time.Duration(c.Frontier.PolitenessDelaySeconds * float64(time.Second))
}
