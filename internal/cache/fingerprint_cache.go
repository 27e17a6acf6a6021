package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"intensityapi/internal/logging"
	"intensityapi/internal/metrics"
	"intensityapi/internal/model"
	"intensityapi/internal/requestctx"
)

// ResultCache is what the request pipeline needs from the cache.
// Get reports absent on any failure; Put never returns an error.
type ResultCache interface {
	Get(ctx context.Context, fp Fingerprint) (*model.AnalysisResult, bool)
	Put(ctx context.Context, fp Fingerprint, res *model.AnalysisResult)
}

// Options tunes a FingerprintCache.
type Options struct {
	TTL     time.Duration
	Timeout time.Duration
	Prefix  string
}

// FingerprintCache maps fingerprints to analysis results on top of a Store.
// Store failures and timeouts degrade to a miss or a skipped write.
// It is safe for concurrent use; concurrent Puts of the same key are last-writer-wins.
type FingerprintCache struct {
	store   Store
	ttl     time.Duration
	timeout time.Duration
	prefix  string
	logger  *slog.Logger
	metrics *metrics.Pipeline
}

var _ ResultCache = (*FingerprintCache)(nil)

// NewFingerprintCache wraps store. logger and m may be nil.
func NewFingerprintCache(store Store, opts Options, logger *slog.Logger, m *metrics.Pipeline) *FingerprintCache {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 200 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &FingerprintCache{
		store:   store,
		ttl:     opts.TTL,
		timeout: opts.Timeout,
		prefix:  opts.Prefix,
		logger:  logger,
		metrics: m,
	}
}

func (c *FingerprintCache) key(fp Fingerprint) string {
	return c.prefix + string(fp)
}

// Get returns the stored result for fp. Any store error, decode error or timeout is a miss.
func (c *FingerprintCache) Get(ctx context.Context, fp Fingerprint) (*model.AnalysisResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.store.Get(ctx, c.key(fp))
	if err != nil {
		if errors.Is(err, ErrMiss) {
			c.metrics.CacheLookup(metrics.LookupMiss)
			return nil, false
		}
		c.metrics.CacheLookup(metrics.LookupError)
		requestctx.Logger(ctx, c.logger).Warn("cache lookup failed, treating as miss",
			"fingerprint", fp.String(), "error", err)
		return nil, false
	}

	var res model.AnalysisResult
	if err := json.Unmarshal(raw, &res); err != nil {
		c.metrics.CacheLookup(metrics.LookupError)
		requestctx.Logger(ctx, c.logger).Warn("cache entry unreadable, treating as miss",
			"fingerprint", fp.String(), "error", err)
		return nil, false
	}
	c.metrics.CacheLookup(metrics.LookupHit)
	return &res, true
}

// Put stores res under fp with the configured TTL. Failures are logged and dropped.
func (c *FingerprintCache) Put(ctx context.Context, fp Fingerprint, res *model.AnalysisResult) {
	if res == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := json.Marshal(res)
	if err == nil {
		err = c.store.SetEX(ctx, c.key(fp), raw, c.ttl)
	}
	c.metrics.CacheWrite(err)
	if err != nil {
		requestctx.Logger(ctx, c.logger).Warn("cache write skipped",
			"fingerprint", fp.String(), "error", err)
	}
}

// Ping checks the backing store.
func (c *FingerprintCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.store.Ping(ctx)
}
