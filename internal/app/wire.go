package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	s3blob "github.com/alanyoungcy/barreplay/internal/blob/s3"
	"github.com/alanyoungcy/barreplay/internal/cache/redis"
	"github.com/alanyoungcy/barreplay/internal/config"
	"github.com/alanyoungcy/barreplay/internal/domain"
	"github.com/alanyoungcy/barreplay/internal/feed"
	"github.com/alanyoungcy/barreplay/internal/metrics"
	"github.com/alanyoungcy/barreplay/internal/notify"
	"github.com/alanyoungcy/barreplay/internal/store/postgres"
)

// uploadPartSize is the multipart chunk size for bar and report uploads.
const uploadPartSize = 8 << 20

// Dependencies bundles everything the modes need. Fields a mode does not
// use stay nil.
type Dependencies struct {
	// Bars is where replays read bars from, selected by replay.bar_source.
	Bars     domain.BarSource
	BarStore domain.BarStore

	// Events, Locks and Limiter are nil when redis is disabled; replays then
	// publish nothing, imports run unlocked and the API is not rate limited.
	Events  domain.EventBus
	Locks   domain.LockManager
	Limiter domain.RateLimiter

	BlobReader domain.BlobReader
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Notifier is nil unless a chat channel is configured.
	Notifier *notify.Notifier
	Registry *prometheus.Registry
}

// Wire constructs the concrete dependencies for cfg and returns them together
// with a cleanup function that releases every opened connection.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Registry: prometheus.NewRegistry(),
	}
	metrics.Register(deps.Registry)

	// --- PostgreSQL ---
	if cfg.NeedsPostgres() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.BarStore = postgres.NewBarStore(pgClient.Pool())
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Events = redis.NewEventBus(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
	}

	// --- S3 ---
	if cfg.NeedsS3() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.BlobWriter = s3blob.NewWriter(s3Client, uploadPartSize)
		if deps.BarStore != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.BarStore, cfg.Import.Prefix)
		}
	}

	deps.Notifier = newNotifier(cfg.Notify, logger)

	bars, err := barSource(cfg, deps)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Bars = bars

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("postgres", deps.BarStore != nil),
		slog.Bool("redis", deps.Events != nil),
		slog.Bool("s3", deps.BlobReader != nil),
		slog.Bool("notify", deps.Notifier != nil),
		slog.String("bar_source", cfg.Replay.BarSource),
	)
	return deps, cleanup, nil
}

// barSource picks the replay bar source. Modes that do not replay get nil.
func barSource(cfg *config.Config, deps *Dependencies) (domain.BarSource, error) {
	if cfg.Mode != "replay" && cfg.Mode != "serve" {
		return nil, nil
	}
	switch cfg.Replay.BarSource {
	case "postgres":
		return deps.BarStore, nil
	case "s3":
		return feed.NewBlobSource(deps.BlobReader, cfg.Replay.BarPrefix), nil
	case "csv":
		return feed.DirSource(cfg.Replay.CSVDir), nil
	default:
		return nil, fmt.Errorf("wire: unknown bar source %q", cfg.Replay.BarSource)
	}
}

// newNotifier builds a notifier from the configured channels, or nil when
// none is set.
func newNotifier(cfg config.NotifyConfig, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhook))
	}
	if len(senders) == 0 {
		return nil
	}
	return notify.NewNotifier(senders, cfg.Events, logger)
}
