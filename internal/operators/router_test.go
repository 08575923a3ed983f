package operators

import (
	"context"
	"errors"
	"testing"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
)

// fakeStore is a simple test double for operatorStore.
type fakeStore struct {
	profiles []domain.OperatorProfile
	err      error

	setEnabledCalls []string
}

func (f *fakeStore) GetAll(ctx context.Context) ([]domain.OperatorProfile, error) {
	return f.profiles, f.err
}

func (f *fakeStore) SetEnabled(ctx context.Context, name string, enabled bool) (bool, error) {
	f.setEnabledCalls = append(f.setEnabledCalls, name)
	for _, p := range f.profiles {
		if p.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func newTestRouter(t *testing.T, profiles ...domain.OperatorProfile) *Router {
	t.Helper()

	store := &fakeStore{profiles: profiles}
	r := NewRouter(store)
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected reload error: %v", err)
	}
	return r
}

func TestRouter_PrimaryHandlesFirstAttempt(t *testing.T) {
	r := newTestRouter(t,
		domain.OperatorProfile{Name: "backup", Priority: 2, Enabled: true},
		domain.OperatorProfile{Name: "primary", Priority: 1, Enabled: true},
	)

	op, err := r.NextOperator(0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Name != "primary" {
		t.Errorf("expected primary for first attempt, got %s", op.Name)
	}
}

func TestRouter_RetryNeverRepeatsPreviousOperator(t *testing.T) {
	r := newTestRouter(t,
		domain.OperatorProfile{Name: "primary", Priority: 1, Enabled: true},
		domain.OperatorProfile{Name: "backup", Priority: 2, Enabled: true},
	)

	previous := ""
	for attempt := 0; attempt < 5; attempt++ {
		op, err := r.NextOperator(attempt, previous)
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", attempt, err)
		}
		if op.Name == previous {
			t.Errorf("attempt %d: operator %s repeated", attempt, op.Name)
		}
		previous = op.Name
	}
}

func TestRouter_SingleOperatorMayRepeat(t *testing.T) {
	r := newTestRouter(t,
		domain.OperatorProfile{Name: "primary", Priority: 1, Enabled: true},
	)

	op, err := r.NextOperator(3, "primary")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Name != "primary" {
		t.Errorf("expected the only operator to repeat, got %s", op.Name)
	}
}

func TestRouter_Deterministic(t *testing.T) {
	r := newTestRouter(t,
		domain.OperatorProfile{Name: "primary", Priority: 1, Enabled: true},
		domain.OperatorProfile{Name: "backup", Priority: 2, Enabled: true},
		domain.OperatorProfile{Name: "tertiary", Priority: 3, Enabled: true},
	)

	first, err := r.NextOperator(4, "backup")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		op, err := r.NextOperator(4, "backup")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if op.Name != first.Name {
			t.Fatalf("expected deterministic pick %s, got %s", first.Name, op.Name)
		}
	}
}

func TestRouter_DisabledOperatorSkipped(t *testing.T) {
	r := newTestRouter(t,
		domain.OperatorProfile{Name: "primary", Priority: 1, Enabled: false},
		domain.OperatorProfile{Name: "backup", Priority: 2, Enabled: true},
	)

	op, err := r.NextOperator(0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Name != "backup" {
		t.Errorf("expected backup when primary disabled, got %s", op.Name)
	}
}

func TestRouter_NoEnabledOperators(t *testing.T) {
	r := newTestRouter(t,
		domain.OperatorProfile{Name: "primary", Priority: 1, Enabled: false},
	)

	_, err := r.NextOperator(0, "")
	if !errors.Is(err, domain.ErrNoOperator) {
		t.Errorf("expected ErrNoOperator, got %v", err)
	}
}

func TestRouter_SetEnabledUpdatesRouting(t *testing.T) {
	store := &fakeStore{profiles: []domain.OperatorProfile{
		{Name: "primary", Priority: 1, Enabled: true},
		{Name: "backup", Priority: 2, Enabled: true},
	}}
	r := NewRouter(store)
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected reload error: %v", err)
	}

	found, err := r.SetEnabled(context.Background(), "primary", false)
	if err != nil || !found {
		t.Fatalf("expected SetEnabled to succeed, got found=%v err=%v", found, err)
	}

	op, err := r.NextOperator(0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Name != "backup" {
		t.Errorf("expected backup after disabling primary, got %s", op.Name)
	}
	if r.EnabledCount() != 1 {
		t.Errorf("expected 1 enabled operator, got %d", r.EnabledCount())
	}
}

func TestRouter_SetEnabledUnknownOperator(t *testing.T) {
	r := newTestRouter(t,
		domain.OperatorProfile{Name: "primary", Priority: 1, Enabled: true},
	)

	found, err := r.SetEnabled(context.Background(), "missing", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false for unknown operator")
	}
}

func TestRouter_LookupByName(t *testing.T) {
	r := newTestRouter(t,
		domain.OperatorProfile{Name: "primary", Priority: 1, Enabled: true},
		domain.OperatorProfile{Name: "backup", Priority: 2, Enabled: false},
	)

	op := r.Lookup("backup")
	if op == nil {
		t.Fatal("expected profile for backup")
	}
	if op.Name != "backup" || op.Enabled {
		t.Errorf("unexpected profile: %+v", op)
	}

	// Returned profile is a copy; mutating it must not touch the snapshot.
	op.Enabled = true
	if again := r.Lookup("backup"); again.Enabled {
		t.Error("expected snapshot to be unaffected by caller mutation")
	}

	if r.Lookup("missing") != nil {
		t.Error("expected nil for unknown operator")
	}
}
