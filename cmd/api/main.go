package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"intensityapi/docs"
	"intensityapi/internal/analyzer"
	"intensityapi/internal/cache"
	"intensityapi/internal/config"
	handlers "intensityapi/internal/http/handler"
	"intensityapi/internal/http/middleware"
	"intensityapi/internal/logging"
	"intensityapi/internal/metrics"
	"intensityapi/internal/otel"
	"intensityapi/internal/service"
)

// multipartSlack covers multipart boundaries and part headers on top of the file itself.
const multipartSlack = 64 * 1024

// @title Image Intensity API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, "api")

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "intensity-api", logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics, err := metrics.NewPipeline(reg)
	if err != nil {
		logger.Error("failed to register pipeline metrics", "error", err)
		os.Exit(1)
	}
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}

	// Backing store for the fingerprint cache (redis, memory or none)
	store, err := cache.New(cfg.Cache)
	if err != nil {
		logger.Error("failed to initialize cache store", "driver", cfg.Cache.Driver, "error", err)
		os.Exit(1)
	}
	resultCache := cache.NewFingerprintCache(store, cache.Options{
		TTL:     cfg.Cache.TTL,
		Timeout: cfg.Cache.Timeout,
		Prefix:  cfg.Cache.Prefix,
	}, logger, pipelineMetrics)

	// One long-lived channel to the analysis service, shared by all requests
	client, err := analyzer.NewClient(analyzer.ClientOptions{
		Address:         cfg.Analyzer.Address,
		Timeout:         cfg.Analyzer.Timeout,
		MaxInFlight:     cfg.Analyzer.MaxInFlight,
		MaxMessageBytes: analyzer.MessageLimit(cfg.MaxUploadBytes),
	}, logger, pipelineMetrics)
	if err != nil {
		logger.Error("failed to create analyzer client", "address", cfg.Analyzer.Address, "error", err)
		os.Exit(1)
	}

	svc := service.NewIntensityService(resultCache, client, service.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		AllowedFormats: cfg.AllowedFormats,
		CoalesceMisses: cfg.Cache.CoalesceMisses,
	}, logger)

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(logger, cfg.MaxUploadBytes),
		BodyLimit:             int(cfg.MaxUploadBytes) + multipartSlack,
		DisableStartupMessage: true,
	})

	// Register global middleware; RequestID runs first so every later failure carries the id
	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware())
	app.Use(promMiddleware.Handler())
	app.Use(middleware.Logger(logger))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	handlers.RegisterRoutes(app, svc, cfg.MaxUploadBytes,
		handlers.Probe{Name: "cache", Check: resultCache.Ping},
		handlers.Probe{Name: "analyzer", Check: client.Ping},
	)

	// Swagger UI with dynamic host and scheme, APP_HOST when the request carries no Host
	docs.SwaggerInfo.Host = cfg.AppHost
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		if host := c.Get("Host"); host != "" {
			docs.SwaggerInfo.Host = host
		}
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			"addr", addr,
			"env", cfg.Env,
			"analyzer", cfg.Analyzer.Address,
			"cache_driver", cfg.Cache.Driver,
		)
		errCh <- app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("failed to start server", "error", err)
		}
	}

	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	// Let in-flight write-throughs land before the store goes away
	svc.Drain()

	if err := client.Close(); err != nil {
		logger.Warn("closing analyzer channel failed", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Warn("closing cache store failed", "error", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("tracer shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
