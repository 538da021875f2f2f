package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter paces page navigations. Wait blocks until enough time has passed
// since the previous action, honoring context cancellation.
type Limiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// JitteredLimiter enforces a randomized delay between actions. The jitter
// makes pagination timing irregular rather than machine-regular.
type JitteredLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
}

func NewJitteredLimiter(minDelay, maxDelay time.Duration) *JitteredLimiter {
	return &JitteredLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

func (l *JitteredLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := time.Since(l.lastAction)
	delay := l.pickDelay()

	if elapsed < delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - elapsed):
		}
	}

	l.lastAction = time.Now()
	return nil
}

func (l *JitteredLimiter) SetDelay(min, max time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minDelay = min
	l.maxDelay = max
}

func (l *JitteredLimiter) pickDelay() time.Duration {
	if l.maxDelay <= l.minDelay {
		return l.minDelay
	}
	return l.minDelay + time.Duration(rand.Int63n(int64(l.maxDelay-l.minDelay)))
}

// BackoffLimiter wraps a JitteredLimiter and stretches its delay window
// after consecutive page failures, recovering slowly on success.
type BackoffLimiter struct {
	*JitteredLimiter
	errorCount    int
	maxErrorCount int
	backoffFactor float64
}

func NewBackoffLimiter(minDelay, maxDelay time.Duration) *BackoffLimiter {
	return &BackoffLimiter{
		JitteredLimiter: NewJitteredLimiter(minDelay, maxDelay),
		maxErrorCount:   3,
		backoffFactor:   1.5,
	}
}

func (b *BackoffLimiter) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errorCount = 0
}

func (b *BackoffLimiter) RecordError() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.errorCount++
	if b.errorCount < b.maxErrorCount {
		return
	}

	newMin := time.Duration(float64(b.minDelay) * b.backoffFactor)
	newMax := time.Duration(float64(b.maxDelay) * b.backoffFactor)
	if newMin > 60*time.Second {
		newMin = 60 * time.Second
	}
	if newMax > 120*time.Second {
		newMax = 120 * time.Second
	}

	b.minDelay = newMin
	b.maxDelay = newMax
	b.errorCount = 0
}
