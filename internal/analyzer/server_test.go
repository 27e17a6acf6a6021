package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"intensityapi/internal/intensity"
	"intensityapi/internal/model"
	"intensityapi/internal/requestctx"
)

func TestServerAnalyzeImage(t *testing.T) {
	srv := NewServer(nil)

	t.Run("success", func(t *testing.T) {
		resp, err := srv.AnalyzeImage(context.Background(), &AnalyzeRequest{
			ImageData:      uniformPNG(t, 10, 4, 255),
			AllowedFormats: []string{"PNG"},
		})
		require.NoError(t, err)
		assert.Equal(t, 255.0, resp.AverageIntensity)
		assert.Equal(t, int32(10), resp.Width)
		assert.Equal(t, int32(4), resp.Height)
		assert.Equal(t, int64(40), resp.PixelCount)
	})

	tests := []struct {
		name       string
		data       []byte
		wantReason string
	}{
		{name: "unsupported format", data: smallGIF(t), wantReason: ReasonUnsupportedFormat},
		{name: "undecodable", data: []byte{0x89, 'P', 'N', 'G'}, wantReason: ReasonUndecodableImage},
		{name: "empty", data: nil, wantReason: ReasonUndecodableImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.AnalyzeImage(context.Background(), &AnalyzeRequest{
				ImageData:      tt.data,
				AllowedFormats: []string{"PNG"},
			})
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, codes.InvalidArgument, st.Code())

			var reason string
			for _, d := range st.Details() {
				if info, ok := d.(*errdetails.ErrorInfo); ok {
					reason = info.GetReason()
					assert.Equal(t, ErrorDomain, info.GetDomain())
				}
			}
			assert.Equal(t, tt.wantReason, reason)
		})
	}

	t.Run("pixel limit is caller input", func(t *testing.T) {
		limited := NewServerWithCompute(intensity.WithPixelLimit(100), nil)
		_, err := limited.AnalyzeImage(context.Background(), &AnalyzeRequest{
			ImageData:      uniformPNG(t, 20, 20, 9),
			AllowedFormats: []string{"PNG"},
		})
		st := status.Convert(err)
		assert.Equal(t, codes.InvalidArgument, st.Code())
		assert.Equal(t, "Error processing image: dimensions 20x20 exceed the limit of 100 pixels", st.Message())
	})

	t.Run("unexpected failure is internal", func(t *testing.T) {
		s := NewServerWithCompute(func([]byte, []string) (*model.AnalysisResult, error) {
			return nil, errors.New("out of memory")
		}, nil)
		_, err := s.AnalyzeImage(context.Background(), &AnalyzeRequest{})
		assert.Equal(t, codes.Internal, status.Code(err))
		assert.NotContains(t, status.Convert(err).Message(), "out of memory")
	})
}

func TestRequestIDInterceptor(t *testing.T) {
	interceptor := RequestIDInterceptor(nil)
	info := &grpc.UnaryServerInfo{FullMethod: AnalyzeImageMethod}

	var seen string
	handler := func(ctx context.Context, req any) (any, error) {
		seen = requestctx.RequestID(ctx)
		return "ok", nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "abc"))
	resp, err := interceptor(ctx, nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, "abc", seen)

	_, err = interceptor(context.Background(), nil, info, handler)
	require.NoError(t, err)
	assert.Empty(t, seen)
}

func TestHealthService(t *testing.T) {
	dialer := startServer(t, NewServer(nil))
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestMessageLimit(t *testing.T) {
	assert.Equal(t, 4+64*1024, MessageLimit(1))
	assert.Equal(t, 4+64*1024, MessageLimit(3))
	assert.Greater(t, MessageLimit(5*1024*1024), 5*1024*1024*4/3)
}
