package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/listings/internal/admin"
	"github.com/JonMunkholm/listings/internal/auth"
	"github.com/JonMunkholm/listings/internal/cache"
	"github.com/JonMunkholm/listings/internal/config"
	"github.com/JonMunkholm/listings/internal/contracts"
	"github.com/JonMunkholm/listings/internal/core"
	"github.com/JonMunkholm/listings/internal/logging"
	"github.com/JonMunkholm/listings/internal/memstore"
	"github.com/JonMunkholm/listings/internal/metrics"
	"github.com/JonMunkholm/listings/internal/notify"
	"github.com/JonMunkholm/listings/internal/postgres"
	"github.com/JonMunkholm/listings/internal/scraper"
	"github.com/JonMunkholm/listings/internal/web"
)

// devTokenTTL is the lifetime of the token printed for the seeded admin.
const devTokenTTL = 24 * time.Hour

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"storage", cfg.Database.Driver,
		"ingest_max_concurrent", cfg.Ingest.MaxConcurrent,
		"row_policy", cfg.Ingest.RowPolicy,
		"scraper_enabled", cfg.Scraper.Enabled,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	var store core.Store
	var pool *pgxpool.Pool
	switch cfg.Database.Driver {
	case "memory":
		mem := memstore.New()
		seedAdmin(ctx, mem, verifier, cfg.Database.SeedAdminEmail)
		store = mem
		slog.Warn("using in-memory storage, data is lost on exit")
	default:
		pool, err = openPool(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				slog.Error("failed to migrate database", "error", err)
				os.Exit(1)
			}
			slog.Info("database schema is up to date")
		}
		store = postgres.NewStore(pool)
	}

	rec := metrics.New()
	opts := []core.Option{
		core.WithMetrics(rec),
		core.WithLogger(slog.Default().With("component", "ingest")),
	}

	if cfg.Broker.URL != "" {
		publisher, err := notify.NewRabbitPublisher(notify.RabbitConfig{
			URL:        cfg.Broker.URL,
			Exchange:   cfg.Broker.Exchange,
			RoutingKey: cfg.Broker.RoutingKey,
		})
		if err != nil {
			slog.Error("failed to connect to message broker", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		opts = append(opts, core.WithNotifier(publisher))
		slog.Info("publishing refresh signals", "exchange", cfg.Broker.Exchange)
	} else {
		opts = append(opts, core.WithNotifier(notify.NewLogNotifier(slog.Default())))
	}

	if cfg.Cache.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		opts = append(opts, core.WithImageCache(cache.NewRedisImageCache(rdb, cfg.Cache.ImageTTL)))
		slog.Info("image cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.ImageTTL.String())
	}

	if cfg.Scraper.Enabled {
		fetcher, err := scraper.NewCollyFetcher(scraper.FetcherConfig{
			UserAgent:      cfg.Scraper.UserAgent,
			RequestTimeout: cfg.Scraper.RequestTimeout,
			Parallelism:    cfg.Scraper.Parallelism,
			Delay:          cfg.Scraper.Delay,
			AllowedDomains: cfg.Scraper.AllowedDomains,
			MaxBodySize:    int(cfg.Ingest.MaxCSVBytes),
		})
		if err != nil {
			slog.Error("failed to create scraper", "error", err)
			os.Exit(1)
		}
		opts = append(opts, core.WithScraper(scraper.NewRunner(fetcher, slog.Default().With("component", "scraper"))))
	}

	service := core.NewService(store, core.ServiceConfig{
		MaxImageBytes:       int(cfg.Ingest.MaxImageBytes),
		RowPolicy:           core.RowPolicy(cfg.Ingest.RowPolicy),
		DefaultCity:         cfg.Ingest.DefaultCity,
		FoldCityNames:       cfg.Ingest.FoldCityNames,
		MaxConcurrentIngest: cfg.Ingest.MaxConcurrent,
		IngestWait:          cfg.Ingest.MaxWaitTime,
		ImportTimeout:       cfg.Ingest.ImportTimeout,
		ScrapeTimeout:       cfg.Scraper.JobTimeout,
	}, opts...)

	schemas, err := contracts.Load()
	if err != nil {
		slog.Error("failed to compile request contracts", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(service, cfg, verifier, schemas, rec)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartJobJanitor(jobCtx, core.JanitorConfig{
		Retention:     cfg.Scraper.JobRetention,
		CheckInterval: cfg.Scraper.JanitorInterval,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		cancelJobs()
		service.CancelScrapeJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Imports and scrape jobs hold ingest slots until they finish
		status := service.IngestStatus()
		if status.Active > 0 {
			slog.Info("waiting for ingestion to complete", "active", status.Active)
			if err := service.WaitForIngest(shutdownCtx); err != nil {
				slog.Warn("ingestion did not complete in time", "error", err)
			} else {
				slog.Info("all ingestion completed")
			}
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

// seedAdmin adds an administrator to the memory store and logs a token for
// it, so the API can be exercised without a user database.
func seedAdmin(ctx context.Context, store *memstore.Store, verifier *auth.Verifier, email string) {
	if email == "" {
		return
	}
	grant, err := admin.Provision(ctx, store, verifier, email, devTokenTTL)
	if err != nil {
		slog.Error("failed to seed development admin", "error", err)
		return
	}
	slog.Info("seeded development admin", "email", grant.User.Email, "user_id", grant.User.ID, "token", grant.Token)
}
