package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"intensityapi/internal/analyzer"
	"intensityapi/internal/apperror"
	"intensityapi/internal/cache"
	"intensityapi/internal/logging"
	"intensityapi/internal/model"
	"intensityapi/internal/requestctx"
)

var tracer = otel.Tracer("intensityapi/internal/service")

// UploadRequest is one received upload. Filename is advisory and never trusted.
type UploadRequest struct {
	Data     []byte
	Filename string
}

// IntensityService defines the upload analysis use case.
type IntensityService interface {
	// Analyze validates the upload, serves it from the fingerprint cache when possible and
	// otherwise asks the analysis service, writing successful results back to the cache.
	// Errors are *apperror.Error values classified as client or server faults.
	Analyze(ctx context.Context, req UploadRequest) (*model.IntensityResponse, error)

	// Drain blocks until pending background cache writes have finished.
	Drain()
}

// Options carries the resolved settings the pipeline reads per request.
type Options struct {
	MaxUploadBytes int64
	AllowedFormats []string
	// CoalesceMisses shares one analysis call between concurrent misses of the same fingerprint.
	CoalesceMisses bool
}

type intensityService struct {
	cache    cache.ResultCache
	analyzer analyzer.Client
	opts     Options
	logger   *slog.Logger

	group  singleflight.Group
	writes sync.WaitGroup
}

// NewIntensityService constructs the request pipeline.
func NewIntensityService(c cache.ResultCache, client analyzer.Client, opts Options, logger *slog.Logger) IntensityService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &intensityService{cache: c, analyzer: client, opts: opts, logger: logger}
}

func (s *intensityService) Analyze(ctx context.Context, req UploadRequest) (*model.IntensityResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "intensity.Analyze",
		trace.WithAttributes(attribute.Int("upload.size", len(req.Data))))
	defer span.End()

	fp := cache.FingerprintOf(req.Data)
	span.SetAttributes(attribute.String("upload.fingerprint", fp.String()))

	status := model.CacheHit
	res, ok := s.lookup(ctx, fp)
	if !ok {
		status = model.CacheMiss
		var err error
		res, err = s.resolve(ctx, fp, req.Data)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, apperror.KindOf(err).String())
			return nil, err
		}
	}
	span.SetAttributes(attribute.String("cache.status", string(status)))

	resp := model.NewIntensityResponse(*res, req.Filename, requestctx.RequestID(ctx), status)
	resp.DurationMS = elapsedMS(ctx)
	return resp, nil
}

func (s *intensityService) validate(req UploadRequest) error {
	if req.Filename == "" {
		return apperror.New(apperror.KindMissingInput, "No file selected")
	}
	if len(req.Data) == 0 {
		return apperror.New(apperror.KindMissingInput, "Empty file uploaded")
	}
	if s.opts.MaxUploadBytes > 0 && int64(len(req.Data)) > s.opts.MaxUploadBytes {
		return apperror.PayloadTooLarge(s.opts.MaxUploadBytes)
	}
	return nil
}

func (s *intensityService) lookup(ctx context.Context, fp cache.Fingerprint) (*model.AnalysisResult, bool) {
	ctx, span := tracer.Start(ctx, "cache.Get")
	defer span.End()
	res, ok := s.cache.Get(ctx, fp)
	span.SetAttributes(attribute.Bool("cache.hit", ok))
	return res, ok
}

// resolve runs the analysis for a miss and schedules the write-through.
func (s *intensityService) resolve(ctx context.Context, fp cache.Fingerprint, data []byte) (*model.AnalysisResult, error) {
	if !s.opts.CoalesceMisses {
		return s.analyzeAndStore(ctx, fp, data)
	}
	v, err, shared := s.group.Do(string(fp), func() (any, error) {
		return s.analyzeAndStore(ctx, fp, data)
	})
	if shared {
		requestctx.Logger(ctx, s.logger).Debug("analysis shared with concurrent upload", "fingerprint", fp.String())
	}
	if err != nil {
		return nil, err
	}
	return v.(*model.AnalysisResult), nil
}

func (s *intensityService) analyzeAndStore(ctx context.Context, fp cache.Fingerprint, data []byte) (*model.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "analyzer.Analyze")
	defer span.End()

	res, err := s.analyzer.Analyze(ctx, data, s.opts.AllowedFormats)
	if err != nil {
		if _, ok := apperror.As(err); !ok {
			err = apperror.Wrap(apperror.KindBackendInternal, err, "analysis backend error")
		}
		span.RecordError(err)
		return nil, err
	}
	s.store(ctx, fp, res)
	return res, nil
}

// store writes res in the background so the response is not held up by the cache.
func (s *intensityService) store(ctx context.Context, fp cache.Fingerprint, res *model.AnalysisResult) {
	ctx = context.WithoutCancel(ctx)
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		s.cache.Put(ctx, fp, res)
	}()
}

func (s *intensityService) Drain() {
	s.writes.Wait()
}

func elapsedMS(ctx context.Context) float64 {
	start, ok := requestctx.Start(ctx)
	if !ok {
		return 0
	}
	return float64(time.Since(start).Microseconds()) / 1000
}
