package requestctx

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"intensityapi/internal/logging"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))

	ctx = WithRequestID(ctx, "rid-1")
	assert.Equal(t, "rid-1", RequestID(ctx))
}

func TestStart(t *testing.T) {
	_, ok := Start(context.Background())
	assert.False(t, ok)

	now := time.Now()
	got, ok := Start(WithStart(context.Background(), now))
	assert.True(t, ok)
	assert.Equal(t, now, got)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := logging.NewWithWriter(&buf, "info", "")

	ctx := WithRequestID(context.Background(), "rid-2")
	Logger(ctx, base).Info("hello")
	assert.Contains(t, buf.String(), `"request_id":"rid-2"`)

	buf.Reset()
	scoped := base.With("scope", "custom")
	Logger(WithLogger(ctx, scoped), base).Info("again")
	assert.Contains(t, buf.String(), `"scope":"custom"`)

	assert.NotNil(t, Logger(context.Background(), nil))
}
