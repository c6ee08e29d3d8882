// Package config loads and validates bot configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all bot configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Select     SelectConfig     `mapstructure:"select"`
	Caption    CaptionConfig    `mapstructure:"caption"`
	Streetview StreetviewConfig `mapstructure:"streetview"`
	Bluesky    BlueskyConfig    `mapstructure:"bluesky"`
	Publish    PublishConfig    `mapstructure:"publish"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Serve      ServeConfig      `mapstructure:"serve"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DatabaseConfig selects and configures the lot store provider.
type DatabaseConfig struct {
	Provider string         `mapstructure:"provider"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SQLiteConfig locates the lot database file.
type SQLiteConfig struct {
	Path  string `mapstructure:"path"`
	Table string `mapstructure:"table"`
}

// PostgresConfig controls access to a Postgres lot database.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// SelectConfig narrows which lots are eligible for posting.
type SelectConfig struct {
	RequireImprovement bool `mapstructure:"require_improvement"`
}

// CaptionConfig bounds composed captions.
type CaptionConfig struct {
	MaxLength int `mapstructure:"max_length"`
}

// StreetviewConfig parameterizes the Street View Static API client.
type StreetviewConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Size           string `mapstructure:"size"`
	FOV            int    `mapstructure:"fov"`
	Pitch          int    `mapstructure:"pitch"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	City           string `mapstructure:"city"`
	State          string `mapstructure:"state"`
}

// BlueskyConfig holds feed credentials and endpoint.
type BlueskyConfig struct {
	Host           string `mapstructure:"host"`
	Identifier     string `mapstructure:"identifier"`
	Password       string `mapstructure:"password"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PublishConfig configures publish retry behavior.
type PublishConfig struct {
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// ArchiveConfig selects where fetched images are kept.
type ArchiveConfig struct {
	Provider string             `mapstructure:"provider"`
	GCS      GCSArchiveConfig   `mapstructure:"gcs"`
	Local    LocalArchiveConfig `mapstructure:"local"`
}

// GCSArchiveConfig sets bucket and object prefix for GCS archival.
type GCSArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// LocalArchiveConfig sets the directory for filesystem archival.
type LocalArchiveConfig struct {
	Dir string `mapstructure:"dir"`
}

// NotifyConfig selects and configures the post-event notifier.
type NotifyConfig struct {
	Provider string       `mapstructure:"provider"`
	PubSub   PubSubConfig `mapstructure:"pubsub"`
	Rabbit   RabbitConfig `mapstructure:"rabbit"`
}

// PubSubConfig holds metadata for Cloud Pub/Sub notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// RabbitConfig holds metadata for RabbitMQ notifications.
type RabbitConfig struct {
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

// ServeConfig controls the HTTP trigger server.
type ServeConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	// A .env file is optional; deployed environments export real variables.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EVERYLOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindAliases(v); err != nil {
		return Config{}, err
	}

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

// Credentials commonly arrive under bare variable names (GOOGLE_API_KEY,
// BLUESKY_IDENTIFIER); honor those alongside the prefixed forms.
func bindAliases(v *viper.Viper) error {
	aliases := []struct {
		key  string
		vars []string
	}{
		{"streetview.api_key", []string{"EVERYLOT_STREETVIEW_API_KEY", "GOOGLE_API_KEY"}},
		{"bluesky.identifier", []string{"EVERYLOT_BLUESKY_IDENTIFIER", "BLUESKY_IDENTIFIER"}},
		{"bluesky.password", []string{"EVERYLOT_BLUESKY_PASSWORD", "BLUESKY_PASSWORD"}},
		{"database.sqlite.path", []string{"EVERYLOT_DATABASE_SQLITE_PATH", "DATABASE_PATH"}},
	}
	for _, a := range aliases {
		if err := v.BindEnv(append([]string{a.key}, a.vars...)...); err != nil {
			return fmt.Errorf("bind env for %s: %w", a.key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("database.provider", "sqlite")
	v.SetDefault("database.sqlite.path", "cincinnati.db")
	v.SetDefault("database.sqlite.table", "cincinnati_lots")
	v.SetDefault("database.postgres.table", "cincinnati_lots")
	v.SetDefault("database.postgres.max_conns", 4)
	v.SetDefault("select.require_improvement", false)
	v.SetDefault("caption.max_length", 300)
	v.SetDefault("streetview.base_url", "https://maps.googleapis.com/maps/api/streetview")
	v.SetDefault("streetview.size", "640x640")
	v.SetDefault("streetview.fov", 65)
	v.SetDefault("streetview.pitch", -10)
	v.SetDefault("streetview.timeout_seconds", 10)
	v.SetDefault("streetview.city", "Cincinnati")
	v.SetDefault("streetview.state", "OH")
	v.SetDefault("bluesky.host", "https://bsky.social")
	v.SetDefault("bluesky.timeout_seconds", 15)
	v.SetDefault("publish.max_retries", 2)
	v.SetDefault("publish.backoff_initial_ms", 250)
	v.SetDefault("publish.backoff_max_ms", 2000)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.gcs.prefix", "streetview")
	v.SetDefault("archive.local.dir", "images")
	v.SetDefault("notify.provider", "noop")
	v.SetDefault("notify.rabbit.exchange", "everylot")
	v.SetDefault("notify.rabbit.routing_key", "lot.posted")
	v.SetDefault("serve.port", 8080)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Database.Provider {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path must be set")
		}
	case "postgres":
		if c.Database.Postgres.DSN == "" {
			return fmt.Errorf("database.postgres.dsn must be set")
		}
	case "memory":
	default:
		return fmt.Errorf("database.provider must be one of sqlite, postgres, memory")
	}
	if c.Caption.MaxLength <= 0 {
		return fmt.Errorf("caption.max_length must be > 0")
	}
	if c.Streetview.TimeoutSeconds <= 0 {
		return fmt.Errorf("streetview.timeout_seconds must be > 0")
	}
	if c.Bluesky.TimeoutSeconds <= 0 {
		return fmt.Errorf("bluesky.timeout_seconds must be > 0")
	}
	if c.Publish.MaxRetries < 0 {
		return fmt.Errorf("publish.max_retries must be >= 0")
	}
	if c.Publish.BackoffInitialMs <= 0 {
		return fmt.Errorf("publish.backoff_initial_ms must be > 0")
	}
	if c.Publish.BackoffMaxMs < c.Publish.BackoffInitialMs {
		return fmt.Errorf("publish.backoff_max_ms must be >= publish.backoff_initial_ms")
	}
	switch c.Archive.Provider {
	case "gcs":
		if c.Archive.GCS.Bucket == "" {
			return fmt.Errorf("archive.gcs.bucket must be set when archive.provider is gcs")
		}
	case "local":
		if c.Archive.Local.Dir == "" {
			return fmt.Errorf("archive.local.dir must be set when archive.provider is local")
		}
	case "noop":
	default:
		return fmt.Errorf("archive.provider must be one of gcs, local, noop")
	}
	switch c.Notify.Provider {
	case "pubsub":
		if c.Notify.PubSub.ProjectID == "" || c.Notify.PubSub.TopicID == "" {
			return fmt.Errorf("notify.pubsub.project_id and notify.pubsub.topic_id must be set when notify.provider is pubsub")
		}
	case "rabbit":
		if c.Notify.Rabbit.URL == "" {
			return fmt.Errorf("notify.rabbit.url must be set when notify.provider is rabbit")
		}
	case "memory", "noop":
	default:
		return fmt.Errorf("notify.provider must be one of pubsub, rabbit, memory, noop")
	}
	if c.Serve.Port <= 0 {
		return fmt.Errorf("serve.port must be > 0")
	}
	return nil
}

// StreetviewTimeout converts the Street View timeout config into a duration.
func (c Config) StreetviewTimeout() time.Duration {
	return time.Duration(c.Streetview.TimeoutSeconds) * time.Second
}

// BlueskyTimeout converts the Bluesky timeout config into a duration.
func (c Config) BlueskyTimeout() time.Duration {
	return time.Duration(c.Bluesky.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the initial publish backoff into a duration.
func (p PublishConfig) BackoffInitial() time.Duration {
	return time.Duration(p.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the publish backoff ceiling into a duration.
func (p PublishConfig) BackoffMax() time.Duration {
	return time.Duration(p.BackoffMaxMs) * time.Millisecond
}
