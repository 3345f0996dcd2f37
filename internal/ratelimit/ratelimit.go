package ratelimit

import (
	"context"
	"time"
)

const (
	// DefaultLimit is the max requests per credential per window.
	DefaultLimit = 100
	// DefaultWindow is the fixed window duration.
	DefaultWindow = 60 * time.Second
)

// Limiter decides whether a request identified by key may proceed.
// The window is fixed, not sliding: the counter resets at window
// boundaries, accepting the standard burst-at-boundary tradeoff in
// exchange for O(1) state per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
