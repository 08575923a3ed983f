// Package operators holds the in-memory registry of delivery gateways and
// the rotation policy that assigns one to each attempt.
package operators

import (
	"context"
	"sort"
	"sync"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
	"github.com/jpcardenas/sms-dispatch/pkg/logger"
)

type operatorStore interface {
	GetAll(ctx context.Context) ([]domain.OperatorProfile, error)
	SetEnabled(ctx context.Context, name string, enabled bool) (bool, error)
}

// Router selects which operator handles a given attempt. Selection is
// deterministic: the enabled operators are ordered by priority (ties broken
// by name), the attempt index rotates through them, and a pick that repeats
// the previous operator advances one slot when an alternative exists.
type Router struct {
	store operatorStore

	mu       sync.RWMutex
	profiles []domain.OperatorProfile // priority order, enabled and disabled
}

func NewRouter(store operatorStore) *Router {
	return &Router{store: store}
}

// Reload replaces the in-memory snapshot from the store.
func (r *Router) Reload(ctx context.Context) error {
	profiles, err := r.store.GetAll(ctx)
	if err != nil {
		return err
	}

	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].Priority != profiles[j].Priority {
			return profiles[i].Priority < profiles[j].Priority
		}
		return profiles[i].Name < profiles[j].Name
	})

	r.mu.Lock()
	r.profiles = profiles
	r.mu.Unlock()

	logger.Infof("Operator registry loaded: %d profiles", len(profiles))
	return nil
}

// NextOperator picks the operator for attemptIndex. previous is the operator
// used on the prior attempt ("" on the first); it is never repeated when a
// second enabled operator exists. Returns ErrNoOperator when none is enabled.
func (r *Router) NextOperator(attemptIndex int, previous string) (*domain.OperatorProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	enabled := r.enabledLocked()
	if len(enabled) == 0 {
		return nil, domain.ErrNoOperator
	}

	if attemptIndex < 0 {
		attemptIndex = 0
	}

	idx := attemptIndex % len(enabled)
	if enabled[idx].Name == previous && len(enabled) > 1 {
		idx = (idx + 1) % len(enabled)
	}

	profile := enabled[idx]
	return &profile, nil
}

// Lookup returns the profile by name, enabled or not. Nil when unknown.
func (r *Router) Lookup(name string) *domain.OperatorProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.profiles {
		if r.profiles[i].Name == name {
			profile := r.profiles[i]
			return &profile
		}
	}

	return nil
}

// SetEnabled flips the flag in the store and the snapshot. False when the
// name is unknown. The change is visible to the next NextOperator call.
func (r *Router) SetEnabled(ctx context.Context, name string, enabled bool) (bool, error) {
	ok, err := r.store.SetEnabled(ctx, name, enabled)
	if err != nil || !ok {
		return ok, err
	}

	r.mu.Lock()
	for i := range r.profiles {
		if r.profiles[i].Name == name {
			r.profiles[i].Enabled = enabled
			break
		}
	}
	r.mu.Unlock()

	logger.Infof("Operator %s enabled=%v", name, enabled)
	return true, nil
}

// Profiles returns a copy of the current snapshot in priority order.
func (r *Router) Profiles() []domain.OperatorProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.OperatorProfile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// EnabledCount reports how many operators are currently enabled.
func (r *Router) EnabledCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.enabledLocked())
}

func (r *Router) enabledLocked() []domain.OperatorProfile {
	enabled := make([]domain.OperatorProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled
}
