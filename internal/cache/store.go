package cache

import (
	"context"
	"time"
)

// Store is the shared counter interface used by the rate limiter.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
