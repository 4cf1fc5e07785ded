package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/superapp/partnerauth/internal/cache"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// pruneThreshold bounds how many counters accumulate before expired ones are dropped.
const pruneThreshold = 1024

// memoryRateStore provides process-local fixed-window counters. It is concurrency-safe.
type memoryRateStore struct {
	mu    sync.Mutex
	data  map[string]*memoryCounter
	clock func() time.Time
}

type memoryCounter struct {
	count     int
	windowEnd time.Time
}

// MemoryRateStoreOption customises the in-memory store.
type MemoryRateStoreOption func(*memoryRateStore)

// WithRateClock overrides the clock used for window arithmetic.
func WithRateClock(now func() time.Time) MemoryRateStoreOption {
	return func(s *memoryRateStore) {
		if now != nil {
			s.clock = now
		}
	}
}

// NewMemoryRateStore constructs an in-memory rate store for single-instance deployments.
func NewMemoryRateStore(opts ...MemoryRateStoreOption) RateStore {
	store := &memoryRateStore{
		data:  make(map[string]*memoryCounter),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *memoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) >= pruneThreshold {
		s.pruneLocked(now)
	}

	counter, ok := s.data[key]
	if !ok || !now.Before(counter.windowEnd) {
		counter = &memoryCounter{windowEnd: now.Add(window)}
		s.data[key] = counter
	}

	counter.count++

	return counter.count, counter.windowEnd.Sub(now), nil
}

func (s *memoryRateStore) pruneLocked(now time.Time) {
	for key, counter := range s.data {
		if !now.Before(counter.windowEnd) {
			delete(s.data, key)
		}
	}
}

// storeRateStore adapts a shared cache.Store so limits hold across instances.
type storeRateStore struct {
	store cache.Store
}

// NewDatabaseRateStore builds a RateStore based on the SQL cache_entries table.
func NewDatabaseRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &storeRateStore{store: store}
}

func (s *storeRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}
