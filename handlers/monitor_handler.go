package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jpcardenas/sms-dispatch/internal/service"
	"github.com/jpcardenas/sms-dispatch/pkg/response"
)

type MonitorHandler struct {
	monitor *service.MonitorService
}

func NewMonitorHandler(monitor *service.MonitorService) *MonitorHandler {
	return &MonitorHandler{monitor: monitor}
}

// Health godoc
// @Summary Queue health evaluation
// @Description Recomputes alerts from the persisted counters. Healthy means no alerts fired.
// @Tags monitor
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/monitor/health [get]
func (h *MonitorHandler) Health(c echo.Context) error {
	summary, err := h.monitor.CheckHealth(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}
	return response.Ok(c, summary)
}

// Dashboard godoc
// @Summary Combined health, operator and limiter view
// @Tags monitor
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/monitor/dashboard [get]
func (h *MonitorHandler) Dashboard(c echo.Context) error {
	dash, err := h.monitor.Dashboard(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}
	return response.Ok(c, dash)
}

// Report godoc
// @Summary Plain-text health report
// @Tags monitor
// @Produce plain
// @Param x-sms-auth-key header string true "Admin API key"
// @Success 200 {string} string
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/monitor/report [get]
func (h *MonitorHandler) Report(c echo.Context) error {
	report, err := h.monitor.Report(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}
	return c.String(http.StatusOK, report)
}
