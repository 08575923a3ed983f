package handlers

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
	"github.com/jpcardenas/sms-dispatch/internal/service"
	"github.com/jpcardenas/sms-dispatch/pkg/gateway"
	"github.com/jpcardenas/sms-dispatch/pkg/logger"
	"github.com/jpcardenas/sms-dispatch/pkg/response"
	"github.com/jpcardenas/sms-dispatch/pkg/validator"
)

// WebhookHandler receives carrier-originated delivery confirmations. Both
// endpoints are idempotent: a report for an already-delivered job is
// acknowledged with confirmed=false.
type WebhookHandler struct {
	service *service.DispatchService
}

func NewWebhookHandler(service *service.DispatchService) *WebhookHandler {
	return &WebhookHandler{service: service}
}

type DeliveryReportRequest struct {
	ID             string `json:"id" validate:"required"`
	DeliveryStatus string `json:"deliveryStatus" validate:"required"`
	Timestamp      string `json:"timestamp,omitempty"`
}

type DeliveredRequest struct {
	Number    string `json:"number" validate:"required"`
	Code      string `json:"code,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// DeliveryReport godoc
// @Summary Carrier delivery report by tracking id
// @Description Maps the carrier status code through the canonical vocabulary and confirms the matching job when the status is delivered
// @Tags webhooks
// @Accept json
// @Produce json
// @Param report body DeliveryReportRequest true "Carrier report"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /webhook/delivery-report [post]
func (h *WebhookHandler) DeliveryReport(c echo.Context) error {
	var req DeliveryReportRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequestWithMessage(c, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	report := domain.DeliveryReport{
		TrackingID: req.ID,
		Status:     gateway.MapDeliveryStatus(req.DeliveryStatus),
		Timestamp:  reportTimestamp(req.Timestamp),
	}

	if report.Status != domain.DeliveryDelivered {
		// Non-delivered reports are acknowledged but change nothing; the
		// retry scheduler already owns failure handling.
		logger.Debugf("Delivery report for %s with status %s ignored", req.ID, report.Status)
		return response.Ok(c, map[string]any{"confirmed": false, "report": report})
	}

	confirmed, err := h.service.ConfirmDeliveryByTracking(c.Request().Context(), req.ID)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, map[string]any{"confirmed": confirmed, "report": report})
}

// reportTimestamp parses the carrier's timestamp, falling back to receipt
// time when absent or malformed.
func reportTimestamp(raw string) time.Time {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Now().UTC()
}

// Delivered godoc
// @Summary Delivery confirmation by recipient number
// @Description Marks the most recent non-delivered job for the number as delivered. Idempotent.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param confirmation body DeliveredRequest true "Confirmation"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /webhook/delivered [post]
func (h *WebhookHandler) Delivered(c echo.Context) error {
	var req DeliveredRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequestWithMessage(c, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	confirmed, err := h.service.ConfirmDeliveryByNumber(c.Request().Context(), req.Number)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return response.BadRequest(c, err)
		}
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, map[string]any{"confirmed": confirmed})
}
