package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	s3blob "github.com/avalens/avalens/internal/blob/s3"
	"github.com/avalens/avalens/internal/cache/redis"
	"github.com/avalens/avalens/internal/config"
	"github.com/avalens/avalens/internal/domain"
	"github.com/avalens/avalens/internal/notify"
	"github.com/avalens/avalens/internal/platform/anthropic"
	"github.com/avalens/avalens/internal/platform/avalanche"
	"github.com/avalens/avalens/internal/platform/coingecko"
	"github.com/avalens/avalens/internal/platform/defillama"
	"github.com/avalens/avalens/internal/platform/rest"
	"github.com/avalens/avalens/internal/platform/zerion"
	"github.com/avalens/avalens/internal/server/handler"
	"github.com/avalens/avalens/internal/service"
	"github.com/avalens/avalens/internal/store/postgres"
)

// Dependencies bundles everything the application needs to serve requests
// and run background jobs. Constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	InsightStore  domain.InsightStore
	UsageStore    domain.UsageStore
	SnapshotStore domain.SnapshotStore

	// Optional infrastructure. Nil when not configured.
	RateLimiter domain.RateLimiter
	BlobWriter  domain.BlobWriter
	Archiver    *s3blob.Archiver
	ChainClient *avalanche.Client

	// Services
	Portfolios *service.PortfolioService
	Generator  *service.Generator

	// Notifications
	Notifier *notify.Notifier

	// Health checks keyed by component name.
	Pingers map[string]handler.Pinger
}

// pingFunc adapts a plain function to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// usageObserver adapts resilient-client call results into append-only usage
// records. The append runs detached so a slow database never sits on the
// request path.
func usageObserver(store domain.UsageStore, logger *slog.Logger) rest.Observer {
	return func(res rest.Result) {
		rec := domain.UsageRecord{
			ID:             uuid.NewString(),
			Service:        domain.APIService(res.Service),
			Endpoint:       res.Endpoint,
			Method:         res.Method,
			RequestedAt:    time.Now().UTC(),
			ResponseStatus: res.Status,
			ResponseTimeMs: res.DurationMs,
			RetryCount:     res.Retries,
		}
		if res.Err != "" {
			rec.Error = res.Err
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Append(ctx, rec); err != nil {
				logger.Warn("usage record append failed",
					slog.String("service", res.Service),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Pingers: make(map[string]handler.Pinger),
	}

	// --- PostgreSQL ---
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

	pool := pgClient.Pool()
	deps.InsightStore = postgres.NewInsightStore(pool)
	deps.UsageStore = postgres.NewUsageStore(pool)
	deps.SnapshotStore = postgres.NewSnapshotStore(pool)
	deps.Pingers["postgres"] = pingFunc(pool.Ping)

	// --- Redis (optional: skipping it disables distributed rate limiting) ---
	if cfg.Redis.Addr != "" {
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

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Pingers["redis"] = redisClient
	} else {
		deps.Pingers["redis"] = nil
	}

	// --- S3 blob storage (optional: skipping it disables archival) ---
	if cfg.S3.Bucket != "" {
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, postgres.NewSnapshotStore(pool))
		deps.Pingers["s3"] = pingFunc(s3Client.Health)
	} else {
		deps.Pingers["s3"] = nil
	}

	// --- Avalanche RPC (optional: chain verification and health only) ---
	if cfg.Chain.RPCURL != "" {
		chainClient, err := avalanche.Dial(ctx, cfg.Chain, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: avalanche rpc: %w", err)
		}
		closers = append(closers, chainClient.Close)

		deps.ChainClient = chainClient
		deps.Pingers["avalanche_rpc"] = pingFunc(func(ctx context.Context) error {
			_, err := chainClient.BlockNumber(ctx)
			return err
		})
	} else {
		deps.Pingers["avalanche_rpc"] = nil
	}

	// --- Provider clients over the shared resilient transport ---
	// One response cache for all providers; keys are namespaced by service.
	restCache := rest.NewCache()
	observer := usageObserver(deps.UsageStore, logger)

	zerionClient, err := zerion.NewClient(cfg.Zerion, cfg.Chain, cfg.Retry,
		time.Duration(cfg.Cache.PortfolioTTLSec)*time.Second, restCache, observer, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: zerion: %w", err)
	}

	geckoClient := coingecko.NewClient(cfg.CoinGecko, cfg.Retry,
		time.Duration(cfg.Cache.PriceTTLSec)*time.Second, restCache, observer, logger)

	llamaClient := defillama.NewClient(cfg.DefiLlama, cfg.Retry,
		time.Duration(cfg.Cache.ProtocolTTLSec)*time.Second, restCache, observer, logger)

	completer := anthropic.NewClient(cfg.Anthropic, deps.UsageStore, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	aggregator := service.NewAggregator(zerionClient, geckoClient, llamaClient, cfg.Chain.ID, logger)
	deps.Portfolios = service.NewPortfolioService(aggregator, deps.SnapshotStore, deps.BlobWriter, geckoClient, zerionClient, logger)

	calculator := service.NewCalculator(nil)
	deps.Generator = service.NewGenerator(
		calculator,
		completer,
		deps.InsightStore,
		deps.RateLimiter,
		notify.NewInsightAdapter(deps.Notifier),
		cfg.Insights,
		cfg.Anthropic,
		logger,
	)

	return deps, cleanup, nil
}
