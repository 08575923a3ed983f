package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/jpcardenas/sms-dispatch/internal/operators"
	"github.com/jpcardenas/sms-dispatch/internal/repository"
	"github.com/jpcardenas/sms-dispatch/pkg/response"
	"github.com/jpcardenas/sms-dispatch/pkg/validator"
)

type OperatorHandler struct {
	router *operators.Router
	repo   *repository.OperatorRepository
}

func NewOperatorHandler(router *operators.Router, repo *repository.OperatorRepository) *OperatorHandler {
	return &OperatorHandler{router: router, repo: repo}
}

type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// List godoc
// @Summary List configured operators
// @Tags operators
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/operators [get]
func (h *OperatorHandler) List(c echo.Context) error {
	return response.Ok(c, h.router.Profiles())
}

// Get godoc
// @Summary Get one operator profile
// @Tags operators
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "Admin API key"
// @Param name path string true "Operator name"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/operators/{name} [get]
func (h *OperatorHandler) Get(c echo.Context) error {
	profile := h.router.Lookup(c.Param("name"))
	if profile == nil {
		return response.NotFound(c, "Operator not found")
	}
	return response.Ok(c, profile)
}

// Stats godoc
// @Summary Per-operator delivery counters
// @Tags operators
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/operators/stats [get]
func (h *OperatorHandler) Stats(c echo.Context) error {
	stats, err := h.repo.Stats(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}
	return response.Ok(c, stats)
}

// SetEnabled godoc
// @Summary Enable or disable an operator
// @Description A disabled operator is removed from routing immediately; in-flight attempts finish
// @Tags operators
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "Admin API key"
// @Param name path string true "Operator name"
// @Param body body SetEnabledRequest true "Desired enabled state"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/operators/{name}/enabled [put]
func (h *OperatorHandler) SetEnabled(c echo.Context) error {
	name := c.Param("name")

	var req SetEnabledRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequestWithMessage(c, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	found, err := h.router.SetEnabled(c.Request().Context(), name, *req.Enabled)
	if err != nil {
		return response.InternalServerError(c, err)
	}
	if !found {
		return response.NotFound(c, "Operator not found")
	}

	msg := "Operator disabled"
	if *req.Enabled {
		msg = "Operator enabled"
	}
	return response.OkWithMessage(c, msg, map[string]any{"name": name, "enabled": *req.Enabled})
}
