package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/semaphore"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"intensityapi/internal/apperror"
	"intensityapi/internal/logging"
	"intensityapi/internal/metrics"
	"intensityapi/internal/model"
	"intensityapi/internal/requestctx"
)

// Call outcomes recorded in metrics.
const (
	outcomeOK          = "ok"
	outcomeClientFault = "client_fault"
	outcomeUnavailable = "unavailable"
	outcomeInternal    = "internal"
)

// Client is the front end's view of the analysis service.
type Client interface {
	// Analyze sends the raw image and allow-list and waits for the result or the call deadline.
	// Errors are *apperror.Error: caller-input kinds for rejected images, backend kinds otherwise.
	Analyze(ctx context.Context, image []byte, allowedFormats []string) (*model.AnalysisResult, error)
	// Ping reports whether the service answers its health check.
	Ping(ctx context.Context) error
	Close() error
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	Address string
	// Timeout is the deadline of each remote call, excluding time queued for a slot.
	Timeout time.Duration
	// MaxInFlight caps concurrent calls; further callers wait for a slot.
	MaxInFlight int
	// MaxMessageBytes bounds the encoded request size; zero keeps gRPC's default.
	MaxMessageBytes int
}

// grpcClient is safe for concurrent use. It holds one long-lived channel.
type grpcClient struct {
	conn     *grpc.ClientConn
	timeout  time.Duration
	slots    *semaphore.Weighted
	callOpts []grpc.CallOption
	logger   *slog.Logger
	metrics  *metrics.Pipeline
}

// NewClient creates the channel to the analysis service. The connection itself is
// established lazily and reused across calls. Extra dial options are appended last.
func NewClient(opts ClientOptions, logger *slog.Logger, m *metrics.Pipeline, dialOpts ...grpc.DialOption) (Client, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("analyzer address is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}

	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	conn, err := grpc.NewClient(opts.Address, append(base, dialOpts...)...)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindBackendUnavailable, err, "analysis backend unavailable")
	}

	callOpts := []grpc.CallOption{grpc.CallContentSubtype(codecName)}
	if opts.MaxMessageBytes > 0 {
		callOpts = append(callOpts,
			grpc.MaxCallSendMsgSize(opts.MaxMessageBytes),
			grpc.MaxCallRecvMsgSize(opts.MaxMessageBytes),
		)
	}

	return &grpcClient{
		conn:     conn,
		timeout:  opts.Timeout,
		slots:    semaphore.NewWeighted(int64(opts.MaxInFlight)),
		callOpts: callOpts,
		logger:   logger,
		metrics:  m,
	}, nil
}

func (c *grpcClient) Analyze(ctx context.Context, image []byte, allowedFormats []string) (*model.AnalysisResult, error) {
	start := time.Now()
	log := requestctx.Logger(ctx, c.logger)

	if err := c.slots.Acquire(ctx, 1); err != nil {
		c.metrics.BackendCall(outcomeUnavailable, time.Since(start))
		return nil, apperror.Wrap(apperror.KindBackendUnavailable, err, "analysis request abandoned while queued")
	}
	defer c.slots.Release(1)
	c.metrics.InFlight(1)
	defer c.metrics.InFlight(-1)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if id := requestctx.RequestID(ctx); id != "" {
		callCtx = metadata.AppendToOutgoingContext(callCtx, RequestIDMetadataKey, id)
	}

	req := &AnalyzeRequest{ImageData: image, AllowedFormats: allowedFormats}
	out := new(AnalyzeResponse)
	if err := c.conn.Invoke(callCtx, AnalyzeImageMethod, req, out, c.callOpts...); err != nil {
		classified, outcome := classify(err)
		c.metrics.BackendCall(outcome, time.Since(start))
		if classified.Kind.ClientFault() {
			log.Debug("analysis rejected input", "kind", classified.Kind.String(), "error", err)
		} else {
			log.Error("analysis call failed", "kind", classified.Kind.String(), "error", err)
		}
		return nil, classified
	}

	res := &model.AnalysisResult{
		AverageIntensity: out.AverageIntensity,
		Width:            int(out.Width),
		Height:           int(out.Height),
		OriginalMode:     out.OriginalMode,
		PixelCount:       int(out.PixelCount),
	}
	if res.PixelCount != res.Width*res.Height {
		c.metrics.BackendCall(outcomeInternal, time.Since(start))
		return nil, apperror.New(apperror.KindBackendInternal,
			fmt.Sprintf("analysis backend returned inconsistent result: %dx%d with %d pixels", res.Width, res.Height, res.PixelCount))
	}

	c.metrics.BackendCall(outcomeOK, time.Since(start))
	return res, nil
}

func (c *grpcClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("analyzer not serving: %s", resp.GetStatus())
	}
	return nil
}

func (c *grpcClient) Close() error {
	return c.conn.Close()
}

// classify turns a gRPC failure into the error taxonomy. INVALID_ARGUMENT and friends are the
// backend saying the caller's bytes are bad; everything else is a backend fault.
func classify(err error) (*apperror.Error, string) {
	st, _ := status.FromError(err)

	switch st.Code() {
	case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition:
		kind := apperror.KindUndecodableImage
		for _, d := range st.Details() {
			if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetReason() == ReasonUnsupportedFormat {
				kind = apperror.KindUnsupportedFormat
			}
		}
		return apperror.Wrap(kind, err, st.Message()), outcomeClientFault
	case codes.ResourceExhausted:
		if strings.Contains(st.Message(), "larger than max") {
			return apperror.Wrap(apperror.KindPayloadTooLarge, err, "File too large"), outcomeClientFault
		}
		return apperror.Wrap(apperror.KindBackendUnavailable, err, "analysis backend unavailable"), outcomeUnavailable
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return apperror.Wrap(apperror.KindBackendUnavailable, err, "analysis backend unavailable"), outcomeUnavailable
	default:
		return apperror.Wrap(apperror.KindBackendInternal, err, "analysis backend error"), outcomeInternal
	}
}
