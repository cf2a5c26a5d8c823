// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
)

// Sink kinds accepted in sink.kinds.
const (
	SinkLog      = "log"
	SinkMemory   = "memory"
	SinkPubSub   = "pubsub"
	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"
)

// Archive backends accepted in archive.backend.
const (
	ArchiveLocal  = "local"
	ArchiveMemory = "memory"
	ArchiveGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Sink    SinkConfig    `mapstructure:"sink"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	DB      DBConfig      `mapstructure:"db"`
	SQLite  SQLiteConfig  `mapstructure:"sqlite"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the status HTTP server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs the poll loop.
type CrawlerConfig struct {
	StartURL        string        `mapstructure:"start_url"`
	UserAgent       string        `mapstructure:"user_agent"`
	IgnoreRobots    bool          `mapstructure:"ignore_robots"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	EmitDelay       time.Duration `mapstructure:"emit_delay"`
	IdleDelay       time.Duration `mapstructure:"idle_delay"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

// HTTPConfig configures HTTP client retry and politeness behavior.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxRetries        int     `mapstructure:"max_retries"`
	BackoffInitialMs  int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int     `mapstructure:"backoff_max_ms"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// LedgerConfig tunes the dedup ledger. Zero retention keeps ids forever.
type LedgerConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

// SinkConfig lists the sinks every emitted message is fanned out to.
type SinkConfig struct {
	Kinds []string `mapstructure:"kinds"`
}

// PubSubConfig holds metadata for publish-subscribe delivery.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DBConfig controls access to the Postgres message store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SQLiteConfig controls the embedded message store.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ArchiveConfig controls raw page snapshots.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment. A .env file in the working
// directory is applied to the environment first when present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("crawler.start_url", "https://voz.vn/whats-new")
	v.SetDefault("crawler.user_agent", "realtime-forum-crawler/0.1")
	v.SetDefault("crawler.ignore_robots", false)
	v.SetDefault("crawler.freshness_window", "10m")
	v.SetDefault("crawler.emit_delay", "1s")
	v.SetDefault("crawler.idle_delay", "10s")
	v.SetDefault("crawler.poll_interval", "10s")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("http.requests_per_second", 1.0)
	v.SetDefault("ledger.retention", "0s")
	v.SetDefault("sink.kinds", []string{SinkLog})
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "forum_messages")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("sqlite.path", "data/messages.db")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.backend", ArchiveLocal)
	v.SetDefault("archive.base_dir", "data/pages")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits. A missing start
// URL wraps forum.ErrFatalConfig.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Crawler.StartURL) == "" {
		return fmt.Errorf("crawler.start_url is required: %w", forum.ErrFatalConfig)
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	if c.Crawler.FreshnessWindow <= 0 {
		return fmt.Errorf("crawler.freshness_window must be > 0")
	}
	if c.Crawler.EmitDelay < 0 || c.Crawler.IdleDelay < 0 || c.Crawler.PollInterval < 0 {
		return fmt.Errorf("crawler.emit_delay, crawler.idle_delay and crawler.poll_interval must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Ledger.Retention < 0 {
		return fmt.Errorf("ledger.retention must be >= 0")
	}
	if c.Ledger.Retention > 0 && c.Ledger.Retention < c.Crawler.FreshnessWindow {
		return fmt.Errorf("ledger.retention must be >= crawler.freshness_window when set")
	}
	if len(c.Sink.Kinds) == 0 {
		return fmt.Errorf("sink.kinds must list at least one sink")
	}
	for _, kind := range c.Sink.Kinds {
		if err := c.validateSink(kind); err != nil {
			return err
		}
	}
	if c.Archive.Enabled {
		if err := c.validateArchive(); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) validateSink(kind string) error {
	switch kind {
	case SinkLog, SinkMemory:
		return nil
	case SinkPubSub:
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required for the pubsub sink")
		}
	case SinkPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres sink")
		}
	case SinkSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for the sqlite sink")
		}
	default:
		return fmt.Errorf("sink.kinds: unknown sink %q", kind)
	}
	return nil
}

func (c Config) validateArchive() error {
	switch c.Archive.Backend {
	case ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend: unknown backend %q", c.Archive.Backend)
	}
	return nil
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
