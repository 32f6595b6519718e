package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RateLimiter paces the watcher's poll cycles.
type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// SimpleRateLimiter waits a fixed interval between cycles, with optional
// jitter between min and max so polls don't land on an exact beat.
type SimpleRateLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
	jitter     bool
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   true,
	}
}

func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.lastAction)
	delay := r.calculateDelay()

	if elapsed < delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - elapsed):
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *SimpleRateLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.minDelay = min
	r.maxDelay = max
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if !r.jitter || r.minDelay >= r.maxDelay {
		return r.minDelay
	}

	delta := r.maxDelay - r.minDelay
	return r.minDelay + time.Duration(rand.Int63n(int64(delta)))
}

// AdaptiveRateLimiter backs off when consecutive cycles error (a struggling
// page gets polled less often) and slowly speeds back up on success.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter

	errorStreak   int
	successStreak int

	errorThreshold   int
	successThreshold int
	backoffFactor    float64
	recoveryFactor   float64
	minFloor         time.Duration
	minCeiling       time.Duration
	maxCeiling       time.Duration
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay),
		errorThreshold:    3,
		successThreshold:  5,
		backoffFactor:     1.5,
		recoveryFactor:    0.9,
		minFloor:          time.Second,
		minCeiling:        60 * time.Second,
		maxCeiling:        120 * time.Second,
	}
}

// RecordSuccess resets the error streak. Once the success streak clears the
// threshold the minimum delay shrinks, but never below the floor.
func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorStreak = 0
	a.successStreak++
	if a.successStreak <= a.successThreshold {
		return
	}
	a.successStreak = 0

	a.minDelay = clampDelay(scaleDelay(a.minDelay, a.recoveryFactor), a.minFloor, a.minCeiling)
}

// RecordError resets the success streak. Once the error streak reaches the
// threshold both delay bounds stretch, capped at their ceilings.
func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successStreak = 0
	a.errorStreak++
	if a.errorStreak < a.errorThreshold {
		return
	}
	a.errorStreak = 0

	a.minDelay = clampDelay(scaleDelay(a.minDelay, a.backoffFactor), 0, a.minCeiling)
	a.maxDelay = clampDelay(scaleDelay(a.maxDelay, a.backoffFactor), 0, a.maxCeiling)
}

func scaleDelay(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}

func clampDelay(d, floor, ceiling time.Duration) time.Duration {
	if d < floor {
		return floor
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
