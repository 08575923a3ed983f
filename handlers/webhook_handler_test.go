package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/jpcardenas/sms-dispatch/pkg/response"
	validatorpkg "github.com/jpcardenas/sms-dispatch/pkg/validator"
)

// TestDeliveryReport_NonDeliveredStatusIgnored verifies that a failed or
// pending carrier report is acknowledged without touching the queue.
func TestDeliveryReport_NonDeliveredStatusIgnored(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()

	// service is nil on purpose; a non-delivered status must never reach it.
	handler := NewWebhookHandler(nil)

	reqBody := `{"id": "trk-1", "deliveryStatus": "2"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/delivery-report", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.DeliveryReport(c); err != nil {
		t.Fatalf("DeliveryReport returned error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp response.SuccessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected data shape: %T", resp.Data)
	}
	if data["confirmed"] != false {
		t.Errorf("expected confirmed=false, got %v", data["confirmed"])
	}
	report, ok := data["report"].(map[string]any)
	if !ok {
		t.Fatalf("unexpected report shape: %T", data["report"])
	}
	if report["status"] != "failed" {
		t.Errorf("expected mapped status failed, got %v", report["status"])
	}
	if report["trackingId"] != "trk-1" {
		t.Errorf("expected tracking id trk-1, got %v", report["trackingId"])
	}
}

// TestDeliveryReport_MissingID verifies the tracking id is required.
func TestDeliveryReport_MissingID(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()

	handler := NewWebhookHandler(nil)

	reqBody := `{"deliveryStatus": "1"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/delivery-report", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.DeliveryReport(c); err != nil {
		t.Fatalf("DeliveryReport returned error: %v", err)
	}

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
}

// TestDelivered_BadJSON verifies malformed bodies are rejected.
func TestDelivered_BadJSON(t *testing.T) {
	e := echo.New()
	handler := NewWebhookHandler(nil)

	reqBody := `{"number":`
	req := httptest.NewRequest(http.MethodPost, "/webhook/delivered", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.Delivered(c); err != nil {
		t.Fatalf("Delivered returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
