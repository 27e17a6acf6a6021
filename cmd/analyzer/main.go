package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"

	"intensityapi/internal/analyzer"
	"intensityapi/internal/config"
	"intensityapi/internal/intensity"
	"intensityapi/internal/logging"
	"intensityapi/internal/otel"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, "analyzer")

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "intensity-analyzer", logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	lis, err := net.Listen("tcp", cfg.Analyzer.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.Analyzer.ListenAddr, "error", err)
		os.Exit(1)
	}

	limit := analyzer.MessageLimit(cfg.MaxUploadBytes)
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.MaxRecvMsgSize(limit),
		grpc.MaxSendMsgSize(limit),
	}
	if cfg.Analyzer.Workers > 0 {
		opts = append(opts, grpc.NumStreamWorkers(uint32(cfg.Analyzer.Workers)))
	}
	srv := analyzer.NewServerWithCompute(intensity.WithPixelLimit(cfg.Analyzer.MaxImagePixels), logger)
	gs, health := analyzer.NewGRPCServer(srv, logger, opts...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{
		Addr:              cfg.Analyzer.MetricsAddr,
		Handler:           otelhttp.NewHandler(mux, "analyzer-metrics"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc server listening",
			"addr", lis.Addr().String(),
			"workers", cfg.Analyzer.Workers,
			"allowed_message_bytes", limit,
			"max_image_pixels", cfg.Analyzer.MaxImagePixels,
		)
		errCh <- gs.Serve(lis)
	}()
	go func() {
		logger.Info("metrics server listening", "addr", cfg.Analyzer.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	// Report NOT_SERVING first so callers stop routing here, then drain in-flight calls
	health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn("graceful stop timed out, forcing")
		gs.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
