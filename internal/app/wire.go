package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/creditpool/internal/blob/s3"
	"github.com/alanyoungcy/creditpool/internal/cache/redis"
	"github.com/alanyoungcy/creditpool/internal/config"
	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/notify"
	"github.com/alanyoungcy/creditpool/internal/risk"
	"github.com/alanyoungcy/creditpool/internal/server/handler"
	"github.com/alanyoungcy/creditpool/internal/service"
	"github.com/alanyoungcy/creditpool/internal/store/postgres"
)

// Dependencies bundles what the modes need. Fields for backends the mode
// does not use are nil.
type Dependencies struct {
	// Stores
	LoanStore      domain.LoanStore
	PolicyStore    domain.PolicyStore
	StructureStore domain.StructureStore
	RunStore       domain.RunStore
	AuditStore     domain.AuditStore

	// Caches
	GridCache   domain.GridCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Bucket   *s3blob.Store
	Exporter domain.Exporter
	Archiver domain.Archiver

	Notifier *notify.Notifier

	Portfolios     *service.PortfolioService
	Securitisation *service.SecuritisationService

	// HealthChecks holds a check for every wired backend.
	HealthChecks map[string]handler.HealthCheck
}

// needsRedis reports whether mode uses the cache, locks or the signal bus.
func needsRedis(mode string) bool {
	return mode == "server"
}

// Wire constructs the concrete dependencies for mode and returns them with a
// cleanup function that releases them.
func Wire(ctx context.Context, cfg *config.Config, mode string, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{HealthChecks: map[string]handler.HealthCheck{}}

	// --- PostgreSQL (every mode) ---
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
		return fail("postgres", err)
	}
	closers = append(closers, pgClient.Close)
	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail("postgres migrations", err)
		}
	}
	pool := pgClient.Pool()
	deps.LoanStore = postgres.NewLoanStore(pool)
	deps.PolicyStore = postgres.NewPolicyStore(pool)
	deps.StructureStore = postgres.NewStructureStore(pool)
	runs := postgres.NewRunStore(pool)
	deps.RunStore = runs
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.HealthChecks["postgres"] = pgClient.Ping

	// --- Redis ---
	if needsRedis(mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.GridCache = redis.NewGridCache(redisClient, cfg.Engine.GridCacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	}

	// --- S3 (optional: export, archive and tape ingest) ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			SSE:            cfg.S3.SSE,
			KMSKeyID:       cfg.S3.KMSKeyID,
		})
		if err != nil {
			return fail("s3", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		store := s3blob.NewStore(s3Client)
		deps.Bucket = &store
		deps.Exporter = s3blob.NewExporter(store.Writer)
		deps.Archiver = s3blob.NewArchiver(store.Writer, store.Reader, runs, deps.AuditStore)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	rates, err := cfg.LossRateTable()
	if err != nil {
		return fail("loss rates", err)
	}
	engine, err := risk.NewEngine(rates)
	if err != nil {
		return fail("risk engine", err)
	}
	deps.Portfolios = service.NewPortfolioService(
		deps.LoanStore, deps.PolicyStore, deps.AuditStore, engine,
		service.PortfolioDefaults{
			NBFI:           cfg.Provisioning.NBFI,
			Lender:         cfg.Provisioning.Lender,
			Scenario:       cfg.Engine.Scenario,
			Periods:        cfg.Engine.Periods,
			FacilityAmount: cfg.Engine.FacilityAmount,
		},
		logger,
	)

	secDeps := service.SecuritisationDeps{
		Structures: deps.StructureStore,
		Runs:       deps.RunStore,
		Pools:      deps.Portfolios,
		Cache:      deps.GridCache,
		Locks:      deps.LockManager,
		Bus:        deps.SignalBus,
		Exporter:   deps.Exporter,
		Audit:      deps.AuditStore,
	}
	if deps.Notifier.Enabled() {
		secDeps.Sink = deps.Notifier
	}
	deps.Securitisation = service.NewSecuritisationService(secDeps, service.SecuritisationConfig{
		LossRates:    cfg.Engine.StressLossRates,
		PrepayRates:  cfg.Engine.StressPrepayRates,
		Periods:      cfg.Engine.Periods,
		SweepWorkers: cfg.Engine.SweepWorkers,
		LockTTL:      cfg.Engine.LockTTL.Duration,
	}, logger)

	return deps, cleanup, nil
}
