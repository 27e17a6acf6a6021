// Package otel configures the OpenTelemetry tracer provider from the standard OTEL_* variables.
package otel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"intensityapi/internal/logging"
)

// settings is the subset of the OTEL_* environment the API and analyzer honour.
type settings struct {
	disabled    bool
	serviceName string
	protocol    string
	endpoint    string
	sampler     string
	samplerArg  string
}

func loadSettings(serviceName string) settings {
	return settings{
		disabled:    os.Getenv("OTEL_SDK_DISABLED") == "true",
		serviceName: envOr("OTEL_SERVICE_NAME", serviceName),
		protocol:    envOr("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
		endpoint:    envOr("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		sampler:     envOr("OTEL_TRACES_SAMPLER", "parentbased_always_on"),
		samplerArg:  envOr("OTEL_TRACES_SAMPLER_ARG", "1.0"),
	}
}

// Init installs a tracer provider exporting over OTLP and the W3C propagators.
// serviceName is used unless OTEL_SERVICE_NAME overrides it. The returned function flushes
// and stops the provider. An exporter that cannot be built leaves tracing off rather than
// failing startup.
func Init(ctx context.Context, serviceName string, logger *slog.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	noop := func(context.Context) error { return nil }

	cfg := loadSettings(serviceName)
	if cfg.disabled {
		logger.Info("tracing configured", "tracing_enabled", false)
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.serviceName)),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg.protocol)
	if err != nil {
		logger.Error("tracing init failed", "error", err, "otlp_protocol", cfg.protocol)
		return noop, nil
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(newSampler(cfg.sampler, cfg.samplerArg)),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing configured",
		"tracing_enabled", true,
		"service", cfg.serviceName,
		"otlp_protocol", cfg.protocol,
		"otlp_endpoint", cfg.endpoint,
		"sampler", cfg.sampler,
		"sampler_arg", cfg.samplerArg,
	)
	return tp.Shutdown, nil
}

// newExporter picks the OTLP transport; endpoints and headers come from the exporter's own env handling.
func newExporter(ctx context.Context, protocol string) (*otlptrace.Exporter, error) {
	switch protocol {
	case "grpc":
		return otlptracegrpc.New(ctx)
	case "http/protobuf":
		return otlptracehttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s", protocol)
	}
}

// newSampler maps OTEL_TRACES_SAMPLER names to samplers. Unknown names sample everything
// under the parent's decision; an unparsable or out-of-range ratio counts as 1.
func newSampler(name, arg string) trace.Sampler {
	ratio, err := strconv.ParseFloat(arg, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		ratio = 1
	}

	switch name {
	case "always_on":
		return trace.AlwaysSample()
	case "always_off":
		return trace.NeverSample()
	case "traceidratio":
		return trace.TraceIDRatioBased(ratio)
	case "parentbased_always_off":
		return trace.ParentBased(trace.NeverSample())
	case "parentbased_traceidratio":
		return trace.ParentBased(trace.TraceIDRatioBased(ratio))
	default:
		return trace.ParentBased(trace.AlwaysSample())
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
