package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
	"github.com/jpcardenas/sms-dispatch/internal/service"
	"github.com/jpcardenas/sms-dispatch/pkg/response"
	"github.com/jpcardenas/sms-dispatch/pkg/validator"
)

type MessageHandler struct {
	service *service.DispatchService
}

func NewMessageHandler(service *service.DispatchService) *MessageHandler {
	return &MessageHandler{service: service}
}

type EnrollBatchRequest struct {
	CampaignID string              `json:"campaignId" validate:"omitempty,max=64"`
	Message    string              `json:"message" validate:"required,max=1000"`
	Recipients []service.EnrollRow `json:"recipients" validate:"required,min=1,max=10000,dive"`
}

type TestSendRequest struct {
	PhoneNumber string          `json:"phoneNumber" validate:"required"`
	Message     string          `json:"message" validate:"required,max=1000"`
	Metadata    domain.Metadata `json:"metadata,omitempty"`
}

// EnrollBatch godoc
// @Summary Enroll a batch of messages
// @Description Enqueues one delivery job per recipient. Duplicate and invalid rows are counted, not fatal.
// @Tags messages
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "API key for messages"
// @Param batch body EnrollBatchRequest true "Campaign batch to enroll"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages [post]
func (h *MessageHandler) EnrollBatch(c echo.Context) error {
	var req EnrollBatchRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequestWithMessage(c, "Invalid request body")
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	report, err := h.service.EnrollBatch(c.Request().Context(), req.CampaignID, req.Message, req.Recipients)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return response.BadRequest(c, err)
		}
		return response.InternalServerError(c, err)
	}

	return response.Created(c, fmt.Sprintf("Enrolled %d messages", report.Enrolled), report)
}

// TestSend godoc
// @Summary Send a single message immediately
// @Description Enrolls one message and drives a synchronous delivery attempt, bypassing the background loops
// @Tags messages
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "API key for messages"
// @Param message body TestSendRequest true "Message to send"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/test [post]
func (h *MessageHandler) TestSend(c echo.Context) error {
	var req TestSendRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequestWithMessage(c, "Invalid request body")
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	outcome, err := h.service.SendImmediate(c.Request().Context(), req.PhoneNumber, req.Message, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateJob):
			return response.Conflict(c, "An identical message for this number is already queued")
		case errors.Is(err, domain.ErrNoOperator):
			return response.InternalServerError(c, err)
		default:
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				return response.BadRequest(c, err)
			}
			return response.InternalServerError(c, err)
		}
	}

	if outcome.Success {
		return response.OkWithMessage(c, "Message sent", outcome)
	}
	return response.OkWithMessage(c, "Message attempt failed; it will be retried", outcome)
}

// GetAllMessages godoc
// @Summary List messages
// @Description Retrieves a paginated list of delivery jobs with optional status filter
// @Tags messages
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "API key for messages"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Param status query string false "Filter by status (pending, retrying, sent, delivered, failed)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages [get]
func (h *MessageHandler) GetAllMessages(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	var status *domain.JobStatus
	if statusStr := c.QueryParam("status"); statusStr != "" {
		parsed := domain.JobStatus(statusStr)
		status = &parsed
	}

	jobs, totalCount, err := h.service.GetAllJobs(c.Request().Context(), status, page, pageSize)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Paginated(c, jobs, page, pageSize, totalCount)
}

// GetMessage godoc
// @Summary Get one message with its attempt history
// @Tags messages
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "API key for messages"
// @Param id path int true "Job id"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/{id} [get]
func (h *MessageHandler) GetMessage(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return response.BadRequestWithMessage(c, "Invalid message id")
	}

	job, history, err := h.service.GetJob(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return response.NotFound(c, "Message not found")
		}
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, map[string]any{
		"job":      job,
		"attempts": history,
	})
}

// GetStats godoc
// @Summary Queue-wide message counts by status
// @Tags messages
// @Accept json
// @Produce json
// @Param x-sms-auth-key header string true "API key for messages"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/stats [get]
func (h *MessageHandler) GetStats(c echo.Context) error {
	state, err := h.service.AggregateState(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}
	return response.Ok(c, state)
}

func parsePaginationParams(c echo.Context) (page, pageSize int, err error) {
	page = 1
	pageSize = 20

	if pageStr := c.QueryParam("page"); pageStr != "" {
		page, err = strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return 0, 0, fmt.Errorf("invalid page parameter")
		}
	}

	if sizeStr := c.QueryParam("pageSize"); sizeStr != "" {
		pageSize, err = strconv.Atoi(sizeStr)
		if err != nil || pageSize < 1 || pageSize > 100 {
			return 0, 0, fmt.Errorf("invalid pageSize parameter (must be 1-100)")
		}
	}

	return page, pageSize, nil
}
