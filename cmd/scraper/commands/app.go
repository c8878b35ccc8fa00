package commands

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/listing-scraper/internal/adapter/chromedp_browser"
	"github.com/user/listing-scraper/internal/adapter/memory"
	"github.com/user/listing-scraper/internal/adapter/postgres"
	redis_adapter "github.com/user/listing-scraper/internal/adapter/redis"
	"github.com/user/listing-scraper/internal/adapter/static_browser"
	"github.com/user/listing-scraper/internal/delivery/http/handler"
	"github.com/user/listing-scraper/internal/extractor"
	"github.com/user/listing-scraper/internal/repository"
	"github.com/user/listing-scraper/internal/usecase"
	"github.com/user/listing-scraper/pkg/config"
	"github.com/user/listing-scraper/pkg/identity"
	"github.com/user/listing-scraper/pkg/metrics"
)

// app holds everything a command needs once the configuration is loaded.
type app struct {
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	manager  usecase.SearchManager
	checks   map[string]handler.HealthCheck
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{checks: make(map[string]handler.HealthCheck)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// --- Metrics ---
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	// --- Queue and status ---
	var (
		queueRepo  repository.QueueRepository
		statusRepo repository.StatusRepository
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("unable to connect to redis: %w", err)
		}
		logger.Info("redis connection established", zap.String("addr", cfg.RedisAddr))
		queueRepo = redis_adapter.NewQueueRepo(rdb)
		statusRepo = redis_adapter.NewStatusRepo(rdb)
		a.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		logger.Info("REDIS_ADDR not set, keeping the queue in memory")
		queueRepo = memory.NewQueueRepo()
		statusRepo = memory.NewStatusRepo()
	}

	// --- Postgres mirror ---
	var (
		companyRepo    repository.CompanyRepository
		failedLinkRepo repository.FailedLinkRepository
	)
	if cfg.PostgresURL != "" {
		dbpool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("unable to create postgres pool: %w", err)
		}
		a.closers = append(a.closers, dbpool.Close)
		if err := dbpool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("unable to connect to postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, dbpool); err != nil {
			return nil, err
		}
		logger.Info("postgres connection pool established")
		companyRepo = postgres.NewCompanyRepo(dbpool)
		failedLinkRepo = postgres.NewFailedLinkRepo(dbpool)
		a.checks["postgres"] = dbpool.Ping
	}

	// --- Browser ---
	rotator := identity.NewRotator(cfg.UserAgentList(), cfg.ProxyList())
	var browser repository.Browser
	switch cfg.Driver {
	case config.DriverStatic:
		browser, err = static_browser.NewStaticBrowser(
			static_browser.Options{PageLoadTimeout: cfg.PageLoadTimeout()},
			rotator,
			logger.Named("browser"),
		)
	default:
		browser, err = chromedp_browser.NewChromedpBrowser(
			chromedp_browser.Options{Headless: cfg.Headless, PageLoadTimeout: cfg.PageLoadTimeout()},
			rotator,
			logger.Named("browser"),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start %s browser: %w", cfg.Driver, err)
	}
	a.closers = append(a.closers, func() {
		if err := browser.Quit(); err != nil {
			logger.Warn("failed to quit browser", zap.Error(err))
		}
	})
	logger.Info("browser started", zap.String("driver", cfg.Driver), zap.Bool("headless", cfg.Headless))

	// --- Use cases ---
	traversal := usecase.NewTraversalEngine(
		browser,
		extractor.New(extractor.DefaultSchema(), logger.Named("extractor")),
		failedLinkRepo,
		a.metrics,
		usecase.TraversalConfig{
			Site:            usecase.DefaultSiteConfig(cfg.LandingURL),
			WaitTimeout:     cfg.WaitTimeout(),
			SkipWriteErrors: cfg.SkipWriteErrors,
		},
		logger.Named("traversal"),
	)
	a.manager = usecase.NewSearchManager(
		queueRepo,
		statusRepo,
		companyRepo,
		traversal,
		a.metrics,
		usecase.SearchManagerConfig{ResultsDir: cfg.ResultsDir, PollInterval: cfg.PollInterval()},
		logger.Named("manager"),
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
