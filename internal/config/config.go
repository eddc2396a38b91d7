// Package config defines the top-level configuration for barreplay and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BARREPLAY_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Replay   ReplayConfig   `toml:"replay"`
	Import   ImportConfig   `toml:"import"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds the bar store connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the event bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ReplayConfig drives replay mode.
type ReplayConfig struct {
	SchedulePath string `toml:"schedule_path"`
	// Symbols restricts the run; empty replays every symbol in the schedule.
	Symbols []string `toml:"symbols"`
	// From and To bound the bars loaded, RFC3339. Empty means unbounded.
	From        string `toml:"from"`
	To          string `toml:"to"`
	DailyBars   bool   `toml:"daily_bars"`
	Timezone    string `toml:"timezone"`
	Parallelism int    `toml:"parallelism"`
	// BarSource is one of "postgres", "s3" or "csv".
	BarSource     string             `toml:"bar_source"`
	BarPrefix     string             `toml:"bar_prefix"`
	CSVDir        string             `toml:"csv_dir"`
	PointValues   map[string]float64 `toml:"point_values"`
	ReportPrefix  string             `toml:"report_prefix"`
	ExportReport  bool               `toml:"export_report"`
	EventsChannel string             `toml:"events_channel"`
}

// ImportConfig drives import mode: CSV bar blobs are copied into postgres.
type ImportConfig struct {
	Prefix    string   `toml:"prefix"`
	Symbols   []string `toml:"symbols"`
	BatchSize int      `toml:"batch_size"`
}

// ServerConfig holds the HTTP API parameters used by serve mode.
type ServerConfig struct {
	Addr        string   `toml:"addr"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	QueueSize   int      `toml:"queue_size"`

	// RateLimit is the number of /api/runs requests one client may make per
	// RateWindowSeconds. It needs redis; 0 disables limiting.
	RateLimit         int `toml:"rate_limit"`
	RateWindowSeconds int `toml:"rate_window_seconds"`
}

// NotifyConfig holds the run alert channels. A channel is active when its
// credentials are set; Events filters which run outcomes are sent.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	DiscordWebhook string   `toml:"discord_webhook"`
	Events         []string `toml:"events"`
}

// MetricsConfig holds the prometheus endpoint parameters.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	Path    string `toml:"path"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "barreplay",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "barreplay",
			ForcePathStyle: true,
		},
		Replay: ReplayConfig{
			SchedulePath:  "schedule.toml",
			Timezone:      "UTC",
			BarSource:     "postgres",
			BarPrefix:     "bars",
			CSVDir:        "data",
			ReportPrefix:  "reports",
			EventsChannel: "replay.events",
		},
		Import: ImportConfig{
			Prefix:    "bars",
			BatchSize: 5000,
		},
		Metrics: MetricsConfig{
			Addr: ":9102",
			Path: "/metrics",
		},
		Server: ServerConfig{
			Addr:              ":8080",
			QueueSize:         16,
			RateLimit:         120,
			RateWindowSeconds: 60,
		},
		Mode:     "replay",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"replay": true,
	"serve":  true,
	"import": true,
	"export": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBarSources = map[string]bool{
	"postgres": true,
	"s3":       true,
	"csv":      true,
}

// Location resolves Replay.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Replay.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Replay.Timezone)
}

// Window parses Replay.From and Replay.To. Unset bounds are zero times.
func (c *Config) Window() (from, to time.Time, err error) {
	if c.Replay.From != "" {
		if from, err = time.Parse(time.RFC3339, c.Replay.From); err != nil {
			return from, to, fmt.Errorf("replay: from: %w", err)
		}
	}
	if c.Replay.To != "" {
		if to, err = time.Parse(time.RFC3339, c.Replay.To); err != nil {
			return from, to, fmt.Errorf("replay: to: %w", err)
		}
	}
	return from, to, nil
}

// replays reports whether the mode runs replays.
func (c *Config) replays() bool {
	return c.Mode == "replay" || c.Mode == "serve"
}

// NeedsPostgres reports whether the configured mode talks to the bar store.
func (c *Config) NeedsPostgres() bool {
	switch c.Mode {
	case "import", "export":
		return true
	}
	return c.replays() && c.Replay.BarSource == "postgres"
}

// NeedsS3 reports whether the configured mode talks to object storage.
func (c *Config) NeedsS3() bool {
	switch c.Mode {
	case "import", "export":
		return true
	}
	return c.replays() && (c.Replay.BarSource == "s3" || c.Replay.ExportReport)
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: replay, serve, import, export)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if c.NeedsPostgres() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.NeedsS3() {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Replay
	if c.replays() {
		if c.Replay.SchedulePath == "" {
			errs = append(errs, "replay: schedule_path must not be empty")
		}
		if !validBarSources[c.Replay.BarSource] {
			errs = append(errs, fmt.Sprintf("replay: unknown bar_source %q (valid: postgres, s3, csv)", c.Replay.BarSource))
		}
		if c.Replay.BarSource == "csv" && c.Replay.CSVDir == "" {
			errs = append(errs, "replay: csv_dir must be set for bar_source csv")
		}
		if c.Replay.Parallelism < 0 {
			errs = append(errs, "replay: parallelism must be >= 0")
		}
		if _, err := c.Location(); err != nil {
			errs = append(errs, fmt.Sprintf("replay: timezone: %v", err))
		}
		from, to, err := c.Window()
		if err != nil {
			errs = append(errs, err.Error())
		} else if !from.IsZero() && !to.IsZero() && to.Before(from) {
			errs = append(errs, "replay: to must not be before from")
		}
		for sym, pv := range c.Replay.PointValues {
			if pv <= 0 {
				errs = append(errs, fmt.Sprintf("replay: point value of %s must be > 0", sym))
			}
		}
	}

	// Import / export
	if (c.Mode == "import" || c.Mode == "export") && c.Import.BatchSize < 1 {
		errs = append(errs, "import: batch_size must be >= 1")
	}

	// Server
	if c.Mode == "serve" {
		if c.Server.Addr == "" {
			errs = append(errs, "server: addr must not be empty")
		}
		if c.Server.QueueSize < 1 {
			errs = append(errs, "server: queue_size must be >= 1")
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindowSeconds < 1 {
			errs = append(errs, "server: rate_window_seconds must be >= 1 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, e := range c.Notify.Events {
		if e != "run_completed" && e != "run_failed" {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q (want run_completed or run_failed)", e))
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics: addr must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
