package handlers

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
	"github.com/jpcardenas/sms-dispatch/internal/scheduler"
	"github.com/jpcardenas/sms-dispatch/pkg/response"
)

type DispatcherHandler struct {
	dispatcher *scheduler.Dispatcher
	// Long-lived context for the loops, so they outlive the HTTP request
	// that started them.
	ctx context.Context
}

func NewDispatcherHandler(ctx context.Context, dispatcher *scheduler.Dispatcher) *DispatcherHandler {
	return &DispatcherHandler{dispatcher: dispatcher, ctx: ctx}
}

// Start godoc
// @Summary Start the background sweep loop
// @Tags dispatcher
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/dispatcher/start [post]
func (h *DispatcherHandler) Start(c echo.Context) error {
	if err := h.dispatcher.Start(h.ctx); err != nil {
		return response.InternalServerError(c, err)
	}
	return response.OkWithMessage(c, "Dispatcher started", h.dispatcher.GetStatus())
}

// Stop godoc
// @Summary Stop the background sweep loop
// @Tags dispatcher
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/dispatcher/stop [post]
func (h *DispatcherHandler) Stop(c echo.Context) error {
	if err := h.dispatcher.Stop(); err != nil {
		return response.InternalServerError(c, err)
	}
	return response.OkWithMessage(c, "Dispatcher stopped", h.dispatcher.GetStatus())
}

// Status godoc
// @Summary Sweep-loop status and counters
// @Tags dispatcher
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/dispatcher/status [get]
func (h *DispatcherHandler) Status(c echo.Context) error {
	return response.Ok(c, h.dispatcher.GetStatus())
}

// StartDrain godoc
// @Summary Start a campaign drain
// @Description Runs the campaign's queue down to empty in the background. Only one drain may be active.
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "Admin API key"
// @Param id path string true "Campaign id"
// @Success 202 {object} response.SuccessResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns/{id}/drain [post]
func (h *DispatcherHandler) StartDrain(c echo.Context) error {
	campaignID := c.Param("id")
	if campaignID == "" {
		return response.BadRequestWithMessage(c, "Missing campaign id")
	}

	if err := h.dispatcher.StartDrain(h.ctx, campaignID); err != nil {
		if errors.Is(err, domain.ErrDrainActive) {
			return response.Conflict(c, "A campaign drain is already active")
		}
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Drain started", h.dispatcher.DrainProgress())
}

// DrainProgress godoc
// @Summary Progress of the current or last campaign drain
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/campaigns/progress [get]
func (h *DispatcherHandler) DrainProgress(c echo.Context) error {
	return response.Ok(c, h.dispatcher.DrainProgress())
}
