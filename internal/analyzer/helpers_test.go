package analyzer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"intensityapi/internal/metrics"
)

const bufSize = 1024 * 1024

// startServer serves srv on an in-memory listener and returns a dialer for it.
func startServer(t *testing.T, srv AnalyzerServer, opts ...grpc.ServerOption) func(context.Context, string) (net.Conn, error) {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	gs, hs := NewGRPCServer(srv, nil, opts...)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(func() {
		hs.Shutdown()
		gs.Stop()
	})
	return func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}
}

func newTestClient(t *testing.T, dialer func(context.Context, string) (net.Conn, error), opts ClientOptions) Client {
	t.Helper()
	if opts.Address == "" {
		opts.Address = "passthrough:///bufnet"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxInFlight == 0 {
		opts.MaxInFlight = 4
	}
	m, err := metrics.NewPipeline(prometheus.NewRegistry())
	require.NoError(t, err)

	c, err := NewClient(opts, nil, m, grpc.WithContextDialer(dialer))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func uniformPNG(t *testing.T, w, h int, v uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func smallGIF(t *testing.T) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}
