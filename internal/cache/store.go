// Package cache implements the content-addressed result cache and its backing stores.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"intensityapi/internal/config"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: key not found")

// Driver identifiers accepted by New.
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
	DriverNone   = "none"
)

// Store is the key-value backing store: GET and SET-with-expiry.
// Expiry is enforced by the store itself.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEX(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// New creates a backing store based on cfg.Driver.
func New(cfg config.CacheConfig) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(cfg.TTL), nil
	case DriverRedis:
		return NewRedis(cfg.Redis)
	case DriverNone:
		return NewNoop(), nil
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", driver)
	}
}
