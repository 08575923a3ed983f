package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
	"github.com/jpcardenas/sms-dispatch/internal/ratelimit"
	"github.com/jpcardenas/sms-dispatch/pkg/logger"
)

// Small internal interfaces so the executor can be tested without a real
// database, gateway or Redis.
type jobStore interface {
	Enroll(ctx context.Context, number, content, campaignID string, metadata domain.Metadata) (int64, error)
	ClaimEligible(ctx context.Context, limit int) ([]domain.Job, error)
	ClaimCampaign(ctx context.Context, campaignID string, limit int) ([]domain.Job, error)
	RecordAttempt(ctx context.Context, jobID int64, operator string, success bool, response, errText *string, latencyMs *int64) (bool, error)
	ConfirmDelivery(ctx context.Context, number string) (bool, error)
	AggregateState(ctx context.Context) (*domain.AggregateState, error)
	GetByID(ctx context.Context, id int64) (*domain.Job, error)
	GetAll(ctx context.Context, status *domain.JobStatus, page, pageSize int) ([]domain.Job, int64, error)
	AttemptHistory(ctx context.Context, jobID int64) ([]domain.AttemptLogEntry, error)
}

type operatorRouter interface {
	NextOperator(attemptIndex int, previous string) (*domain.OperatorProfile, error)
}

type transport interface {
	Send(ctx context.Context, op *domain.OperatorProfile, recipient, content, queueRef string) (*domain.TransportReceipt, error)
}

type trackingCache interface {
	CacheTracking(ctx context.Context, trackingID, number string) error
	LookupTracking(ctx context.Context, trackingID string) (string, error)
}

type dynamicLinks interface {
	LinkFor(ctx context.Context, campaignID string) string
}

// DispatchService is the delivery executor: it resolves the message text,
// gates the send behind both rate limiters, drives the transport and
// records the outcome. It also owns enrollment and the synchronous
// test-send path.
type DispatchService struct {
	jobs          jobStore
	router        operatorRouter
	gateway       transport
	limiters      *ratelimit.Registry
	globalLimiter *ratelimit.GlobalLimiter
	tracking      trackingCache // optional
	links         dynamicLinks  // optional
}

func NewDispatchService(
	jobs jobStore,
	router operatorRouter,
	gw transport,
	limiters *ratelimit.Registry,
	globalLimiter *ratelimit.GlobalLimiter,
	tracking trackingCache,
	links dynamicLinks,
) *DispatchService {
	return &DispatchService{
		jobs:          jobs,
		router:        router,
		gateway:       gw,
		limiters:      limiters,
		globalLimiter: globalLimiter,
		tracking:      tracking,
		links:         links,
	}
}

// EnrollRow is one recipient in a batch enrollment.
type EnrollRow struct {
	Number   string          `json:"number" validate:"required"`
	Metadata domain.Metadata `json:"metadata,omitempty"`
}

// EnrollReport counts the per-row results of a batch enrollment. Duplicate
// and invalid rows never fail the batch.
type EnrollReport struct {
	Enrolled   int      `json:"enrolled"`
	Duplicates int      `json:"duplicates"`
	Invalid    int      `json:"invalid"`
	JobIDs     []int64  `json:"jobIds"`
	Errors     []string `json:"errors,omitempty"`
}

// EnrollBatch persists one pending job per valid, non-duplicate row.
func (s *DispatchService) EnrollBatch(
	ctx context.Context,
	campaignID, message string,
	rows []EnrollRow,
) (*EnrollReport, error) {
	if strings.TrimSpace(message) == "" {
		return nil, &domain.ValidationError{Field: "message", Message: "must not be empty"}
	}

	report := &EnrollReport{}

	for _, row := range rows {
		number, err := NormalizeRecipient(row.Number)
		if err != nil {
			report.Invalid++
			report.Errors = append(report.Errors, err.Error())
			continue
		}

		id, err := s.jobs.Enroll(ctx, number, message, campaignID, row.Metadata)
		if err != nil {
			if errors.Is(err, domain.ErrDuplicateJob) {
				report.Duplicates++
				continue
			}
			return nil, err
		}

		report.Enrolled++
		report.JobIDs = append(report.JobIDs, id)
	}

	logger.Infof("Enrolled %d jobs (%d duplicates, %d invalid) for campaign %q",
		report.Enrolled, report.Duplicates, report.Invalid, campaignID)

	return report, nil
}

// SendImmediate enrolls one job and synchronously drives a single delivery
// attempt, bypassing the background loops. Used for verification sends.
func (s *DispatchService) SendImmediate(
	ctx context.Context,
	number, message string,
	metadata domain.Metadata,
) (*domain.SendOutcome, error) {
	normalized, err := NormalizeRecipient(number)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		return nil, &domain.ValidationError{Field: "message", Message: "must not be empty"}
	}

	id, err := s.jobs.Enroll(ctx, normalized, message, "", metadata)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	op, err := s.router.NextOperator(0, "")
	if err != nil {
		return nil, err
	}

	outcome := s.Deliver(ctx, job, op)
	return &outcome, nil
}

// BatchResult summarizes one ProcessBatch pass.
type BatchResult struct {
	Claimed  int
	Sent     int
	Failed   int
	Outcomes []domain.SendOutcome
}

// ProcessBatch claims up to limit eligible jobs and delivers each through
// the operator the router assigns for its attempt index. Both consumer
// loops call this; the claim keeps them from ever processing the same job.
func (s *DispatchService) ProcessBatch(ctx context.Context, limit int) (*BatchResult, error) {
	jobs, err := s.jobs.ClaimEligible(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim eligible jobs: %w", err)
	}
	return s.deliverBatch(ctx, jobs)
}

// ProcessCampaignBatch is ProcessBatch restricted to one campaign. The
// drain loop calls it until a pass claims nothing.
func (s *DispatchService) ProcessCampaignBatch(ctx context.Context, campaignID string, limit int) (*BatchResult, error) {
	jobs, err := s.jobs.ClaimCampaign(ctx, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim campaign jobs: %w", err)
	}
	return s.deliverBatch(ctx, jobs)
}

func (s *DispatchService) deliverBatch(ctx context.Context, jobs []domain.Job) (*BatchResult, error) {
	result := &BatchResult{Claimed: len(jobs)}
	if len(jobs) == 0 {
		return result, nil
	}

	logger.Infof("Processing %d claimed jobs", len(jobs))

	for i := range jobs {
		job := &jobs[i]

		previous := ""
		if job.Operator != nil {
			previous = *job.Operator
		}

		op, err := s.router.NextOperator(job.Attempts, previous)
		if err != nil {
			// No enabled operator: halt the batch without consuming
			// attempts; claims lapse and the health monitor raises the
			// alert. The remaining jobs would hit the same wall.
			return result, err
		}

		outcome := s.Deliver(ctx, job, op)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Success {
			result.Sent++
		} else {
			result.Failed++
		}

		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	}

	return result, nil
}

// Deliver sends one job through one operator and records the outcome. Every
// path through this function ends in exactly one RecordAttempt call.
func (s *DispatchService) Deliver(
	ctx context.Context,
	job *domain.Job,
	op *domain.OperatorProfile,
) domain.SendOutcome {
	outcome := domain.SendOutcome{JobID: job.ID, Operator: op.Name}

	var dynamicLink string
	if s.links != nil && job.CampaignID != "" && strings.Contains(job.Content, LinkPlaceholder) {
		dynamicLink = s.links.LinkFor(ctx, job.CampaignID)
	}

	content := RenderMessage(job.Content, job.Metadata, dynamicLink)

	if strings.TrimSpace(content) == "" {
		// Local reject: consumes an attempt but never touches the network
		// or the rate limiters.
		outcome.Error = domain.ErrEmptyMessage
		outcome.ErrorText = domain.ErrEmptyMessage.Error()
		s.record(ctx, job.ID, op.Name, &outcome)
		return outcome
	}

	limiter := s.limiters.For(op.Name, op.MaxPerMinute)
	if err := limiter.Acquire(ctx); err != nil {
		outcome.Error = err
		outcome.ErrorText = err.Error()
		return outcome
	}
	if err := s.globalLimiter.Acquire(ctx); err != nil {
		outcome.Error = err
		outcome.ErrorText = err.Error()
		return outcome
	}

	recipient := InternationalFormat(job.PhoneNumber)
	queueRef := fmt.Sprintf("%d", job.ID)

	receipt, err := s.gateway.Send(ctx, op, recipient, content, queueRef)
	if err != nil {
		outcome.Error = err
		outcome.ErrorText = err.Error()
		limiter.RecordError()
		s.record(ctx, job.ID, op.Name, &outcome)
		logger.Warnf("Job %d attempt %d via %s failed: %v", job.ID, job.Attempts+1, op.Name, err)
		return outcome
	}

	outcome.Success = true
	outcome.TrackingID = receipt.TrackingID
	outcome.RawResponse = receipt.RawResponse
	outcome.LatencyMs = receipt.LatencyMs
	limiter.RecordSuccess()
	s.record(ctx, job.ID, op.Name, &outcome)

	if s.tracking != nil && receipt.TrackingID != "" {
		if err := s.tracking.CacheTracking(ctx, receipt.TrackingID, job.PhoneNumber); err != nil {
			logger.Warnf("Failed to cache tracking id for job %d: %v", job.ID, err)
		}
	}

	return outcome
}

func (s *DispatchService) record(ctx context.Context, jobID int64, operator string, outcome *domain.SendOutcome) {
	var response, errText *string
	if outcome.RawResponse != "" {
		response = &outcome.RawResponse
	}
	if outcome.ErrorText != "" {
		errText = &outcome.ErrorText
	}

	var latency *int64
	if outcome.LatencyMs > 0 {
		latency = &outcome.LatencyMs
	}

	found, err := s.jobs.RecordAttempt(ctx, jobID, operator, outcome.Success, response, errText, latency)
	if err != nil {
		logger.Errorf("Failed to record attempt for job %d: %v", jobID, err)
		return
	}
	if !found {
		logger.Warnf("Attempt recorded for unknown job id %d", jobID)
	}
}

// ConfirmDeliveryByNumber marks the most recent non-delivered job for the
// recipient as delivered. Idempotent.
func (s *DispatchService) ConfirmDeliveryByNumber(ctx context.Context, number string) (bool, error) {
	normalized, err := NormalizeRecipient(number)
	if err != nil {
		return false, err
	}
	return s.jobs.ConfirmDelivery(ctx, normalized)
}

// ConfirmDeliveryByTracking resolves a provider tracking id through the
// cache and confirms the matching recipient's job.
func (s *DispatchService) ConfirmDeliveryByTracking(ctx context.Context, trackingID string) (bool, error) {
	if s.tracking == nil {
		return false, nil
	}

	number, err := s.tracking.LookupTracking(ctx, trackingID)
	if err != nil {
		return false, err
	}
	if number == "" {
		return false, nil
	}

	return s.jobs.ConfirmDelivery(ctx, number)
}

func (s *DispatchService) AggregateState(ctx context.Context) (*domain.AggregateState, error) {
	return s.jobs.AggregateState(ctx)
}

func (s *DispatchService) GetJob(ctx context.Context, id int64) (*domain.Job, []domain.AttemptLogEntry, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.jobs.AttemptHistory(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return job, history, nil
}

func (s *DispatchService) GetAllJobs(
	ctx context.Context,
	status *domain.JobStatus,
	page, pageSize int,
) ([]domain.Job, int64, error) {
	return s.jobs.GetAll(ctx, status, page, pageSize)
}
