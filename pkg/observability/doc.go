// Package observability provides structured logging, Prometheus metrics,
// health probes, graceful shutdown and OpenTelemetry setup for meterd.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithComponent("billing").WithField("provider", "paddle").Info("webhook received")
//
// Request-scoped loggers travel in the context:
//
//	observability.FromContext(r.Context()).Warn("quota denied")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordRateLimit("generate:hourly", allowed)
//
// All Record* helpers accept a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	router.HandleFunc("/readyz", checker.Readiness)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers)
package observability
