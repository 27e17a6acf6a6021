package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type memoryStore struct {
	items *gocache.Cache
}

// NewMemory builds a process-local store; expired entries are purged every 2*ttl.
func NewMemory(ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &memoryStore{items: gocache.New(ttl, ttl*2)}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, found := s.items.Get(key)
	if !found {
		return nil, ErrMiss
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, ErrMiss
	}
	return b, nil
}

func (s *memoryStore) SetEX(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.items.Set(key, value, ttl)
	return nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) Close() error {
	s.items.Flush()
	return nil
}

// noopStore never holds anything; every lookup misses.
type noopStore struct{}

// NewNoop returns a store that disables caching.
func NewNoop() Store { return noopStore{} }

func (noopStore) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }
func (noopStore) SetEX(context.Context, string, []byte, time.Duration) error { return nil }
func (noopStore) Ping(context.Context) error { return nil }
func (noopStore) Close() error { return nil }
