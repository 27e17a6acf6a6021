package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"intensityapi/internal/intensity"
	"intensityapi/internal/logging"
	"intensityapi/internal/model"
	"intensityapi/internal/requestctx"
)

// ComputeFunc performs the pixel analysis.
type ComputeFunc func(data []byte, allowed []string) (*model.AnalysisResult, error)

// Server implements AnalyzerServer on top of a ComputeFunc.
type Server struct {
	compute ComputeFunc
	logger  *slog.Logger
}

var _ AnalyzerServer = (*Server)(nil)

// NewServer returns a Server that analyses with intensity.Compute and its default pixel limit.
func NewServer(logger *slog.Logger) *Server {
	return NewServerWithCompute(intensity.Compute, logger)
}

// NewServerWithCompute allows substituting the computation, e.g. intensity.WithPixelLimit.
func NewServerWithCompute(compute ComputeFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{compute: compute, logger: logger}
}

// AnalyzeImage decodes and measures the image. Caller-input failures become INVALID_ARGUMENT
// with an ErrorInfo reason; anything else is INTERNAL.
func (s *Server) AnalyzeImage(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error) {
	log := requestctx.Logger(ctx, s.logger)

	res, err := s.compute(req.ImageData, req.AllowedFormats)
	if err != nil {
		switch {
		case errors.Is(err, intensity.ErrUnsupportedFormat):
			log.Warn("image format rejected", "error", err)
			return nil, invalidArgument(err, ReasonUnsupportedFormat)
		case errors.Is(err, intensity.ErrUndecodable):
			log.Warn("image could not be decoded", "error", err)
			return nil, invalidArgument(err, ReasonUndecodableImage)
		default:
			log.Error("image analysis failed", "error", err)
			return nil, status.Error(codes.Internal, "image analysis failed")
		}
	}

	return &AnalyzeResponse{
		AverageIntensity: res.AverageIntensity,
		Width:            int32(res.Width),
		Height:           int32(res.Height),
		OriginalMode:     res.OriginalMode,
		PixelCount:       int64(res.PixelCount),
	}, nil
}

func invalidArgument(err error, reason string) error {
	st := status.New(codes.InvalidArgument, err.Error())
	if withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: ErrorDomain}); derr == nil {
		st = withInfo
	}
	return st.Err()
}

// RequestIDInterceptor lifts the correlation id out of incoming metadata into the
// request context and logs each call with it.
func RequestIDInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = logging.Discard()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(RequestIDMetadataKey); len(ids) > 0 && ids[0] != "" {
				ctx = requestctx.WithRequestID(ctx, ids[0])
			}
		}
		log := requestctx.Logger(ctx, logger)
		ctx = requestctx.WithLogger(ctx, log)

		resp, err := handler(ctx, req)

		log.Info("rpc completed",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"latency_ms", float64(time.Since(start).Microseconds())/1000,
		)
		return resp, err
	}
}

// NewGRPCServer builds a grpc.Server with the analysis and health services registered.
// The returned health server reports SERVING for ServiceName until shut down.
func NewGRPCServer(srv AnalyzerServer, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(RequestIDInterceptor(logger))}, opts...)
	gs := grpc.NewServer(opts...)

	RegisterAnalyzerServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	return gs, hs
}
