package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/dealscout/internal/analysis"
	s3blob "github.com/alanyoungcy/dealscout/internal/blob/s3"
	cachemem "github.com/alanyoungcy/dealscout/internal/cache/memory"
	"github.com/alanyoungcy/dealscout/internal/cache/redis"
	"github.com/alanyoungcy/dealscout/internal/config"
	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/monitor"
	"github.com/alanyoungcy/dealscout/internal/notify"
	"github.com/alanyoungcy/dealscout/internal/provider"
	"github.com/alanyoungcy/dealscout/internal/provider/scrape"
	"github.com/alanyoungcy/dealscout/internal/search"
	"github.com/alanyoungcy/dealscout/internal/server/handler"
	"github.com/alanyoungcy/dealscout/internal/service"
	storemem "github.com/alanyoungcy/dealscout/internal/store/memory"
	"github.com/alanyoungcy/dealscout/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	DealStore   domain.DealStore
	GoalStore   domain.GoalStore
	PriceStore  domain.PriceStore
	MarketStore domain.MarketStore

	// Caches
	Cache       domain.CacheStore
	EventBus    domain.EventBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter // nil with the memory backend

	// Blob storage; nil when s3 is disabled.
	Archiver domain.Archiver

	// Health checks of the external backends, keyed by name.
	Checks map[string]handler.Check

	// Discovery pipeline
	Planner    *search.Planner
	Dispatcher search.Dispatcher
	Scraper    *scrape.Scraper // nil when the scraper is disabled
	Persister  service.Persister
	Search     *service.SearchService
	Analysis   *analysis.Service

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- PostgreSQL, or in-process stores ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Postgres.DSN,
			Host:           cfg.Postgres.Host,
			Port:           cfg.Postgres.Port,
			Database:       cfg.Postgres.Database,
			User:           cfg.Postgres.User,
			Password:       cfg.Postgres.Password,
			SSLMode:        cfg.Postgres.SSLMode,
			MaxConns:       cfg.Postgres.PoolMaxConns,
			MinConns:       cfg.Postgres.PoolMinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.DealStore = postgres.NewDealStore(pool)
		deps.GoalStore = postgres.NewGoalStore(pool)
		deps.PriceStore = postgres.NewPriceStore(pool)
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
		logger.InfoContext(ctx, "wire: postgres connected")
	} else {
		deps.DealStore = storemem.NewDealStore()
		deps.GoalStore = storemem.NewGoalStore()
		deps.PriceStore = storemem.NewPriceStore()
		deps.MarketStore = storemem.NewMarketStore()
		logger.WarnContext(ctx, "wire: postgres disabled, deals are kept in memory")
	}

	// --- Redis, or in-process caches ---
	if strings.EqualFold(cfg.Cache.Backend, "redis") {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Cache = redis.NewCacheStore(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = redisClient.Ping
		logger.InfoContext(ctx, "wire: redis connected", slog.String("addr", cfg.Redis.Addr))
	} else {
		deps.Cache = cachemem.NewCacheStore()
		deps.EventBus = cachemem.NewEventBus()
		deps.LockManager = cachemem.NewLockManager()
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client))
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Marketplace providers ---
	markets := make([]provider.MarketOptions, 0, len(domain.MarketTypes))
	for _, m := range domain.MarketTypes {
		mc, ok := cfg.Providers.Markets[string(m)]
		markets = append(markets, provider.MarketOptions{
			Market:  m,
			Enabled: ok && mc.Enabled,
			Options: provider.Options{
				BaseURL: cfg.Providers.BaseURL,
				APIKey:  cfg.Providers.APIKey,
				Timeout: mc.Timeout.Duration,
			},
		})
	}
	adapters, err := provider.Build(markets)
	if err != nil {
		return fail(fmt.Errorf("wire: providers: %w", err))
	}
	if len(adapters) == 0 {
		logger.WarnContext(ctx, "wire: no marketplace enabled, live discovery returns nothing")
	}

	orchestrator := search.NewOrchestrator(adapters, search.OrchestratorConfig{
		GlobalTimeout: cfg.Providers.GlobalTimeout.Duration,
		ResultLimit:   cfg.Providers.ResultLimit,
	}, logger)
	deps.Dispatcher = search.NewCachingDispatcher(orchestrator, deps.Cache, cfg.Cache.SearchTTL.Duration, logger)
	deps.Planner = search.NewPlanner(cfg.Search.Brands)

	if cfg.Providers.Scraper.Enabled {
		opts := []scrape.Option{scrape.WithTimeout(cfg.Providers.Scraper.Timeout.Duration)}
		if ua := cfg.Providers.Scraper.UserAgent; ua != "" {
			opts = append(opts, scrape.WithUserAgent(ua))
		}
		deps.Scraper = scrape.New(scrape.DefaultSites(), logger, opts...)
	}

	// --- Services ---
	marketSvc := service.NewMarketService(deps.MarketStore, deps.Cache, logger)
	persister := service.NewDealPersister(deps.DealStore, deps.PriceStore, marketSvc, cfg.Search.DealTTL.Duration, logger)
	deps.Persister = service.NewCachingPersister(persister, deps.Cache, deps.EventBus,
		cfg.Cache.DealTTL.Duration, cfg.Cache.BasicTTL.Duration, logger)

	deps.Search = service.NewSearchService(deps.DealStore, deps.Cache, deps.Planner, deps.Dispatcher, deps.Persister,
		service.SearchConfig{
			Realtime:     cfg.Search.Realtime,
			MaxResults:   cfg.Search.MaxResults,
			DefaultLimit: cfg.Search.DefaultLimit,
			DealTTL:      cfg.Cache.DealTTL.Duration,
			BasicTTL:     cfg.Cache.BasicTTL.Duration,
		}, logger)
	deps.Analysis = analysis.NewService(deps.DealStore, deps.PriceStore, deps.GoalStore, deps.Cache,
		cfg.Cache.AnalysisTTL.Duration, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Timeout.Duration, logger)
	// Drain in-flight notifications before the backends close.
	closers = append(closers, deps.Notifier.Wait)

	return deps, cleanup, nil
}

// NewMonitor builds the background monitor over deps.
func NewMonitor(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *monitor.Monitor {
	md := monitor.Deps{
		Goals:      deps.GoalStore,
		Deals:      deps.DealStore,
		Prices:     deps.PriceStore,
		Planner:    deps.Planner,
		Dispatcher: deps.Dispatcher,
		Persister:  deps.Persister,
		Notifier:   deps.Notifier,
		Bus:        deps.EventBus,
		Locks:      deps.LockManager,
		Cache:      deps.Cache,
	}
	if deps.Scraper != nil {
		md.Scraper = deps.Scraper
	}
	if deps.Archiver != nil {
		md.Archiver = monitor.NewArchiver(deps.DealStore, deps.Archiver, cfg.Monitor.ArchiveRetention.Duration, 0, logger)
		md.ArchiveCron = cfg.Monitor.ArchiveCron
	}
	return monitor.New(md, monitor.Config{
		Interval:          cfg.Monitor.Interval.Duration,
		ExpireBatch:       cfg.Monitor.ExpireBatch,
		RefreshAge:        cfg.Monitor.RefreshAge.Duration,
		RefreshBatch:      cfg.Monitor.RefreshBatch,
		NotifyDedupWindow: cfg.Monitor.NotifyDedupWindow.Duration,
		MaxResults:        cfg.Search.MaxResults,
	}, logger)
}
