// Package ratelimit provides fixed-window request limiting for the API
// surface, backed by Redis when configured and process memory otherwise.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter provides rate limit checks. The window length is fixed per
// call site; counts reset at window boundaries.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}
