package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
)

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name    string
		sampler string
		arg     string
		want    trace.Sampler
	}{
		{"always on", "always_on", "", trace.AlwaysSample()},
		{"always off", "always_off", "", trace.NeverSample()},
		{"ratio", "traceidratio", "0.25", trace.TraceIDRatioBased(0.25)},
		{"parent ratio", "parentbased_traceidratio", "0.5", trace.ParentBased(trace.TraceIDRatioBased(0.5))},
		{"parent off", "parentbased_always_off", "", trace.ParentBased(trace.NeverSample())},
		{"garbage ratio", "traceidratio", "lots", trace.TraceIDRatioBased(1)},
		{"ratio above one", "traceidratio", "7", trace.TraceIDRatioBased(1)},
		{"unknown name", "jaeger_remote", "", trace.ParentBased(trace.AlwaysSample())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want.Description(), newSampler(tt.sampler, tt.arg).Description())
		})
	}
}

func TestLoadSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("OTEL_SERVICE_NAME", "")
		t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "")
		t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4317")
		t.Setenv("OTEL_TRACES_SAMPLER", "")

		s := loadSettings("intensity-api")
		assert.Equal(t, "intensity-api", s.serviceName)
		assert.Equal(t, "grpc", s.protocol)
		assert.Equal(t, "http://collector:4317", s.endpoint)
		assert.Equal(t, "parentbased_always_on", s.sampler)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("OTEL_SERVICE_NAME", "analyzer-canary")
		t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "http://traces:4318")
		t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf")

		s := loadSettings("intensity-analyzer")
		assert.Equal(t, "analyzer-canary", s.serviceName)
		assert.Equal(t, "http/protobuf", s.protocol)
		assert.Equal(t, "http://traces:4318", s.endpoint)
	})
}

func TestInitDisabled(t *testing.T) {
	t.Setenv("OTEL_SDK_DISABLED", "true")

	shutdown, err := Init(context.Background(), "intensity-api", nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitUnsupportedProtocolDegrades(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "carrier-pigeon")

	shutdown, err := Init(context.Background(), "intensity-api", nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
