// Package ratelimit gates every outbound send behind two token buckets: an
// adaptive per-operator bucket sized from the operator's per-minute cap and
// a fixed global bucket shared by all operators.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jpcardenas/sms-dispatch/pkg/logger"
)

const (
	// Adaptive bounds: never shrink below 10/min, never grow past 200/min.
	minCapacity = 10
	maxCapacity = 200

	shrinkThreshold = 0.20
	growThreshold   = 0.05
	growStep        = 5

	errorWindow   = 60 * time.Second
	maxErrorRing  = 10
	maxAcquireLog = 100
)

// OperatorLimiter is a token bucket seeded with capacity = the operator's
// per-minute cap, refilled continuously at capacity/60 tokens per second.
// In adaptive mode the capacity shrinks to max(10, 80%) when the trailing
// 60-second error rate reaches 20%, and grows by 5 (up to 200) on success
// while the rate stays under 5%.
type OperatorLimiter struct {
	limiter  *rate.Limiter
	adaptive bool

	mu        sync.Mutex
	capacity  int
	errors    []time.Time // ring of the most recent error timestamps
	acquires  []time.Time // recent acquire timestamps, bounded
	errorRate float64

	now func() time.Time
}

func NewOperatorLimiter(perMinute int, adaptive bool) *OperatorLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &OperatorLimiter{
		limiter:  rate.NewLimiter(perMinuteLimit(perMinute), perMinute),
		adaptive: adaptive,
		capacity: perMinute,
		now:      time.Now,
	}
}

// Acquire blocks the caller until one token is available, then consumes it.
func (l *OperatorLimiter) Acquire(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	l.acquires = append(l.acquires, l.now())
	if len(l.acquires) > maxAcquireLog {
		l.acquires = l.acquires[len(l.acquires)-maxAcquireLog:]
	}
	l.mu.Unlock()

	return nil
}

// RecordError feeds a failed send into the adaptive window.
func (l *OperatorLimiter) RecordError() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.errors = append(l.errors, now)
	if len(l.errors) > maxErrorRing {
		l.errors = l.errors[len(l.errors)-maxErrorRing:]
	}

	recent := 0
	for _, t := range l.errors {
		if now.Sub(t) < errorWindow {
			recent++
		}
	}

	attempts := len(l.acquires)
	if attempts == 0 {
		return
	}
	if attempts > maxAcquireLog {
		attempts = maxAcquireLog
	}
	l.errorRate = float64(recent) / float64(attempts)

	if l.adaptive && l.errorRate >= shrinkThreshold {
		reduced := l.capacity * 8 / 10
		if reduced < minCapacity {
			reduced = minCapacity
		}
		if reduced < l.capacity {
			logger.Warnf("Rate limiter: error rate %.1f%%, reducing capacity to %d/min",
				l.errorRate*100, reduced)
			l.setCapacityLocked(reduced)
		}
	}
}

// RecordSuccess feeds a successful send into the adaptive window.
func (l *OperatorLimiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.adaptive || l.errorRate >= growThreshold {
		return
	}

	grown := l.capacity + growStep
	if grown > maxCapacity {
		grown = maxCapacity
	}
	if grown > l.capacity {
		logger.Debugf("Rate limiter: error rate low, increasing capacity to %d/min", grown)
		l.setCapacityLocked(grown)
	}
}

// Capacity returns the current per-minute cap.
func (l *OperatorLimiter) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity
}

// ErrorRate returns the last computed trailing error rate.
func (l *OperatorLimiter) ErrorRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errorRate
}

func (l *OperatorLimiter) setCapacityLocked(capacity int) {
	l.capacity = capacity
	l.limiter.SetLimit(perMinuteLimit(capacity))
	l.limiter.SetBurst(capacity)
}

func perMinuteLimit(perMinute int) rate.Limit {
	return rate.Limit(float64(perMinute) / 60.0)
}

// GlobalLimiter bounds total outbound load in messages per second across
// all operators. Non-adaptive.
type GlobalLimiter struct {
	limiter *rate.Limiter
}

func NewGlobalLimiter(perSecond int) *GlobalLimiter {
	if perSecond < 1 {
		perSecond = 1
	}
	return &GlobalLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

func (g *GlobalLimiter) Acquire(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}
