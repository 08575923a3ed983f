package ratelimit

import (
	"sync"
)

// Registry hands out one limiter per operator, created lazily with the
// operator's per-minute cap on first use.
type Registry struct {
	adaptive bool

	mu       sync.Mutex
	limiters map[string]*OperatorLimiter
}

func NewRegistry(adaptive bool) *Registry {
	return &Registry{
		adaptive: adaptive,
		limiters: make(map[string]*OperatorLimiter),
	}
}

// For returns the limiter for the named operator, creating it with the
// given capacity if it does not exist yet. Later capacity changes are owned
// by the limiter's adaptive logic, not by this registry.
func (r *Registry) For(operator string, perMinute int) *OperatorLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, ok := r.limiters[operator]
	if !ok {
		limiter = NewOperatorLimiter(perMinute, r.adaptive)
		r.limiters[operator] = limiter
	}

	return limiter
}

// Snapshot returns the current capacity and error rate per operator.
func (r *Registry) Snapshot() map[string]LimiterStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]LimiterStats, len(r.limiters))
	for name, l := range r.limiters {
		out[name] = LimiterStats{
			Capacity:  l.Capacity(),
			ErrorRate: l.ErrorRate(),
		}
	}
	return out
}

type LimiterStats struct {
	Capacity  int     `json:"capacity"`
	ErrorRate float64 `json:"errorRate"`
}
