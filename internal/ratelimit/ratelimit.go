// Package ratelimit provides the admission gate in front of the upstream
// catalog API, using token bucket rate limiters with per-caller-class
// sub-budgets so that bulk passes are never starved by interactive traffic.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/questlogapp/questlog-server/internal/errors"
)

// Class identifies the caller class acquiring admission. Each class has its
// own sub-budget of the upstream quota.
type Class string

// Caller classes.
const (
	ClassInteractive Class = "interactive"
	ClassWebhook     Class = "webhook"
	ClassBatch       Class = "batch"
)

// Budget is the rate budget for one caller class.
type Budget struct {
	RPS   float64
	Burst int
}

// Gate manages per-class admission to the upstream API.
// Safe for unlimited concurrent acquire.
type Gate struct {
	mu       sync.RWMutex
	limiters map[Class]*rate.Limiter
	fallback Budget

	// maxWait bounds how long an acquire may block before failing with a
	// RateLimited error instead of waiting indefinitely.
	maxWait time.Duration
}

// New creates a gate with per-class budgets. Classes without an explicit
// budget share the fallback budget definition (each gets its own limiter).
func New(budgets map[Class]Budget, fallback Budget, maxWait time.Duration) *Gate {
	limiters := make(map[Class]*rate.Limiter, len(budgets))
	for class, budget := range budgets {
		limiters[class] = rate.NewLimiter(rate.Limit(budget.RPS), budget.Burst)
	}
	return &Gate{
		limiters: limiters,
		fallback: fallback,
		maxWait:  maxWait,
	}
}

// Acquire blocks until the class budget admits one call, the bounded wait
// elapses, or ctx is done. Saturation surfaces as a RateLimited error, a
// caller deadline as Timeout.
func (g *Gate) Acquire(ctx context.Context, class Class) error {
	waitCtx := ctx
	if g.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.maxWait)
		defer cancel()
	}

	if err := g.limiter(class).Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), errors.CodeTimeout, "admission wait canceled")
		}
		return errors.Wrap(err, errors.CodeRateLimited, "admission gate saturated")
	}
	return nil
}

// Allow reports whether one call is admitted right now without blocking.
func (g *Gate) Allow(class Class) bool {
	return g.limiter(class).Allow()
}

// limiter returns the limiter for a class, creating a fallback-budget
// limiter for unknown classes.
func (g *Gate) limiter(class Class) *rate.Limiter {
	// Fast path: read lock
	g.mu.RLock()
	limiter, exists := g.limiters[class]
	g.mu.RUnlock()

	if exists {
		return limiter
	}

	// Slow path: write lock to create
	g.mu.Lock()
	defer g.mu.Unlock()

	if limiter, exists = g.limiters[class]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(g.fallback.RPS), g.fallback.Burst)
	g.limiters[class] = limiter
	return limiter
}
