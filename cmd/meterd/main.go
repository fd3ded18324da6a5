package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/voicequote/meterd/pkg/accounts"
	"github.com/voicequote/meterd/pkg/ai"
	"github.com/voicequote/meterd/pkg/api"
	"github.com/voicequote/meterd/pkg/billing"
	"github.com/voicequote/meterd/pkg/config"
	"github.com/voicequote/meterd/pkg/identity"
	"github.com/voicequote/meterd/pkg/observability"
	"github.com/voicequote/meterd/pkg/quota"
	"github.com/voicequote/meterd/pkg/ratelimit"
)

func main() {
	envFile := flag.String("env-file", ".env", "Optional dotenv file read before the environment")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load %s: %v", *envFile, err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithComponent("meterd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("meterd exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = observability.NewMetrics(registry)
	}

	// Account store
	db, err := accounts.Open(ctx, cfg.Database.Driver, cfg.Database.URL, accounts.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	store := accounts.NewSQLStore(db, accounts.Dialect(cfg.Database.Driver))
	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return err
		}
	}
	logger.WithField("driver", cfg.Database.Driver).Info("Account store ready")

	// Rate limiting
	var (
		limiterStore ratelimit.Store
		redisClient  *redis.Client
		sweeper      *ratelimit.Sweeper
	)
	switch cfg.RateLimit.Backend {
	case "redis":
		redisClient, err = ratelimit.NewRedisClient(ctx, cfg.RateLimit.RedisURL)
		if err != nil {
			db.Close()
			return err
		}
		limiterStore = ratelimit.NewRedisStore(redisClient, "meterd:rl")
	default:
		mem := ratelimit.NewMemoryStore(
			ratelimit.WithMaxKeys(cfg.RateLimit.MaxKeysPerBucket),
			ratelimit.WithMetrics(metrics),
		)
		sweeper, err = ratelimit.NewSweeper(mem, cfg.RateLimit.SweepSchedule, logger, metrics)
		if err != nil {
			db.Close()
			return err
		}
		sweeper.Start()
		limiterStore = mem
	}
	logger.WithField("backend", cfg.RateLimit.Backend).Info("Rate limiter ready")

	// Identity
	var resolver identity.Resolver = identity.NoopResolver{}
	if cfg.Identity.Enabled() {
		oidcResolver, err := identity.NewOIDCResolver(ctx, identity.Config{
			Issuer:     cfg.Identity.Issuer,
			JWKSURL:    cfg.Identity.JWKSURL,
			Audience:   cfg.Identity.Audience,
			CookieName: cfg.Identity.CookieName,
		})
		if err != nil {
			db.Close()
			return err
		}
		resolver = oidcResolver
	} else {
		logger.Warn("No identity issuer configured, every caller is anonymous")
	}

	// Providers
	groq := ai.NewGroqClient(ai.Config{
		APIKey:             cfg.AI.APIKey,
		BaseURL:            cfg.AI.BaseURL,
		ChatModel:          cfg.AI.ChatModel,
		TranscriptionModel: cfg.AI.TranscriptionModel,
		Timeout:            cfg.AI.Timeout,
		Retries:            1,
		Logger:             logger,
		Metrics:            metrics,
	})
	paddle := billing.NewPaddleClient(billing.ClientConfig{
		BaseURL: cfg.Paddle.APIBaseURL,
		APIKey:  cfg.Paddle.APIKey,
		Timeout: cfg.Paddle.RequestTimeout,
		Logger:  logger,
		Metrics: metrics,
	})
	lemon := billing.NewLemonClient(billing.ClientConfig{
		BaseURL: cfg.Lemon.APIBaseURL,
		APIKey:  cfg.Lemon.APIKey,
		Timeout: cfg.Lemon.RequestTimeout,
		Logger:  logger,
		Metrics: metrics,
	})
	mappers := map[billing.Provider]billing.PlanMapper{
		billing.ProviderPaddle: {BusinessID: cfg.Paddle.BusinessPriceID},
		billing.ProviderLemon:  {BusinessID: cfg.Lemon.BusinessProductID},
	}

	server := api.NewServer(api.Dependencies{
		Accounts:            store,
		Tracker:             quota.NewTracker(store, quota.WithMetrics(metrics)),
		Limiter:             ratelimit.NewLimiter(limiterStore, metrics),
		Policies:            cfg.RateLimit.Policies,
		RateLimitFailClosed: cfg.RateLimit.FailClosed,
		Identity:            resolver,
		Generator:           groq,
		Transcriber:         groq,
		Reconciler:          billing.NewReconciler(store, mappers, logger, metrics),
		WebhookSecrets: map[billing.Provider]string{
			billing.ProviderPaddle: cfg.Paddle.WebhookSecret,
			billing.ProviderLemon:  cfg.Lemon.WebhookSecret,
		},
		Restorers: map[billing.Provider]*billing.Restorer{
			billing.ProviderPaddle: billing.NewRestorer(paddle, mappers[billing.ProviderPaddle], store, logger, metrics),
			billing.ProviderLemon:  billing.NewRestorer(lemon, mappers[billing.ProviderLemon], store, logger, metrics),
		},
		Orders:       lemon,
		Health:       observability.NewHealthChecker(db, redisClient, cfg.Observability.OTelServiceVersion),
		Metrics:      metrics,
		Registry:     registry,
		Logger:       logger,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      observability.WrapHandler(server, cfg.Observability.OTelEnabled, "meterd"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	if sweeper != nil {
		shutdown.Register("ratelimit-sweeper", sweeper.Stop)
	}
	if redisClient != nil {
		shutdown.Register("ratelimit-redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("accounts-db", func(context.Context) error { return db.Close() })
	shutdown.Register("otel", func(ctx context.Context) error { return observability.ShutdownOTel(ctx, otelProviders) })

	serveErr := make(chan error, 1)
	go func() {
		defer observability.RecoverPanic(logger, "http server")
		logger.Infof("Listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		logger.WithError(err).Error("HTTP server failed")
		if shutdownErr := shutdown.Shutdown(); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		return err
	case <-ctx.Done():
		return shutdown.Shutdown()
	}
}
