package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BARREPLAY_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BARREPLAY_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BARREPLAY_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "BARREPLAY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BARREPLAY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BARREPLAY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BARREPLAY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BARREPLAY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BARREPLAY_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BARREPLAY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BARREPLAY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BARREPLAY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BARREPLAY_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BARREPLAY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BARREPLAY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BARREPLAY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BARREPLAY_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "BARREPLAY_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BARREPLAY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BARREPLAY_S3_REGION")
	setStr(&cfg.S3.Bucket, "BARREPLAY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BARREPLAY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BARREPLAY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BARREPLAY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BARREPLAY_S3_FORCE_PATH_STYLE")

	// ── Replay ──
	setStr(&cfg.Replay.SchedulePath, "BARREPLAY_REPLAY_SCHEDULE_PATH")
	setStringSlice(&cfg.Replay.Symbols, "BARREPLAY_REPLAY_SYMBOLS")
	setStr(&cfg.Replay.From, "BARREPLAY_REPLAY_FROM")
	setStr(&cfg.Replay.To, "BARREPLAY_REPLAY_TO")
	setBool(&cfg.Replay.DailyBars, "BARREPLAY_REPLAY_DAILY_BARS")
	setStr(&cfg.Replay.Timezone, "BARREPLAY_REPLAY_TIMEZONE")
	setInt(&cfg.Replay.Parallelism, "BARREPLAY_REPLAY_PARALLELISM")
	setStr(&cfg.Replay.BarSource, "BARREPLAY_REPLAY_BAR_SOURCE")
	setStr(&cfg.Replay.BarPrefix, "BARREPLAY_REPLAY_BAR_PREFIX")
	setStr(&cfg.Replay.CSVDir, "BARREPLAY_REPLAY_CSV_DIR")
	setStr(&cfg.Replay.ReportPrefix, "BARREPLAY_REPLAY_REPORT_PREFIX")
	setBool(&cfg.Replay.ExportReport, "BARREPLAY_REPLAY_EXPORT_REPORT")
	setStr(&cfg.Replay.EventsChannel, "BARREPLAY_REPLAY_EVENTS_CHANNEL")

	// ── Import ──
	setStr(&cfg.Import.Prefix, "BARREPLAY_IMPORT_PREFIX")
	setStringSlice(&cfg.Import.Symbols, "BARREPLAY_IMPORT_SYMBOLS")
	setInt(&cfg.Import.BatchSize, "BARREPLAY_IMPORT_BATCH_SIZE")

	// ── Server ──
	setStr(&cfg.Server.Addr, "BARREPLAY_SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "BARREPLAY_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "BARREPLAY_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.QueueSize, "BARREPLAY_SERVER_QUEUE_SIZE")
	setInt(&cfg.Server.RateLimit, "BARREPLAY_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateWindowSeconds, "BARREPLAY_SERVER_RATE_WINDOW_SECONDS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BARREPLAY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BARREPLAY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhook, "BARREPLAY_NOTIFY_DISCORD_WEBHOOK")
	setStringSlice(&cfg.Notify.Events, "BARREPLAY_NOTIFY_EVENTS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "BARREPLAY_METRICS_ENABLED")
	setStr(&cfg.Metrics.Addr, "BARREPLAY_METRICS_ADDR")
	setStr(&cfg.Metrics.Path, "BARREPLAY_METRICS_PATH")

	// ── Top-level ──
	setStr(&cfg.Mode, "BARREPLAY_MODE")
	setStr(&cfg.LogLevel, "BARREPLAY_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
