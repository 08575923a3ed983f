package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
	"github.com/jpcardenas/sms-dispatch/internal/operators"
)

// staticOperatorStore backs the router with a fixed profile list.
type staticOperatorStore struct {
	profiles []domain.OperatorProfile
}

func (s *staticOperatorStore) GetAll(ctx context.Context) ([]domain.OperatorProfile, error) {
	return s.profiles, nil
}

func (s *staticOperatorStore) SetEnabled(ctx context.Context, name string, enabled bool) (bool, error) {
	return false, nil
}

func newTestOperatorHandler(t *testing.T) *OperatorHandler {
	t.Helper()

	router := operators.NewRouter(&staticOperatorStore{profiles: []domain.OperatorProfile{
		{Name: "primary", Priority: 1, Enabled: true},
	}})
	if err := router.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected reload error: %v", err)
	}
	return NewOperatorHandler(router, nil)
}

func TestGetOperator_ReturnsProfile(t *testing.T) {
	e := echo.New()
	handler := newTestOperatorHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operators/primary", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("name")
	c.SetParamValues("primary")

	if err := handler.Get(c); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestGetOperator_UnknownName(t *testing.T) {
	e := echo.New()
	handler := newTestOperatorHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operators/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("name")
	c.SetParamValues("missing")

	if err := handler.Get(c); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}
