package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
)

const jobColumns = `id, phone_number, content, campaign_id, status, attempts, max_attempts,
	operator, metadata, next_retry_at, last_error, last_response, confirmed, confirmed_at,
	claim_token, claimed_until, created_at, first_attempt_at, last_attempt_at`

// JobRepository owns the durable queue: the jobs table, the append-only
// attempt log and the operator stats counters that are updated in the same
// transaction as every log write.
type JobRepository struct {
	db         *sqlx.DB
	claimLease time.Duration
}

func NewJobRepository(db *sqlx.DB, claimLease time.Duration) *JobRepository {
	if claimLease <= 0 {
		claimLease = 2 * time.Minute
	}
	return &JobRepository{db: db, claimLease: claimLease}
}

// Enroll persists a new job in state pending. The (number, content,
// campaign) tuple is unique; a second enrollment returns ErrDuplicateJob.
func (r *JobRepository) Enroll(
	ctx context.Context,
	number, content, campaignID string,
	metadata domain.Metadata,
) (int64, error) {
	query := `
		INSERT INTO jobs (phone_number, content, campaign_id, status, max_attempts, metadata, created_at)
		VALUES (?, ?, ?, 'pending', ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		number, content, campaignID, domain.DefaultMaxAttempts, metadata, time.Now().UTC())
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return 0, domain.ErrDuplicateJob
		}
		return 0, fmt.Errorf("failed to enroll job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get job id: %w", err)
	}

	return id, nil
}

// ClaimEligible atomically reserves up to limit eligible jobs for this
// caller and returns them. Eligible means pending, or retrying with the
// backoff elapsed, with attempts remaining and no live claim lease. The
// reservation is a single conditional UPDATE that tags rows with a random
// claim token, so two concurrent callers always receive disjoint sets; a
// lease that expires without a recorded outcome makes the job eligible
// again.
func (r *JobRepository) ClaimEligible(ctx context.Context, limit int) ([]domain.Job, error) {
	return r.claim(ctx, "", limit)
}

// ClaimCampaign is ClaimEligible restricted to one campaign's jobs. The
// drain loop uses it so a campaign can be run down without competing with
// the rest of the queue.
func (r *JobRepository) ClaimCampaign(ctx context.Context, campaignID string, limit int) ([]domain.Job, error) {
	return r.claim(ctx, campaignID, limit)
}

func (r *JobRepository) claim(ctx context.Context, campaignID string, limit int) ([]domain.Job, error) {
	token, err := newClaimToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	claim := `
		UPDATE jobs
		SET claim_token = ?, claimed_until = ?
		WHERE (status = 'pending' OR (status = 'retrying' AND next_retry_at <= ?))
		  AND attempts < max_attempts
		  AND (claimed_until IS NULL OR claimed_until <= ?)
	`

	args := []any{token, now.Add(r.claimLease), now, now}
	if campaignID != "" {
		claim += ` AND campaign_id = ?`
		args = append(args, campaignID)
	}
	claim += `
		ORDER BY attempts ASC, created_at ASC
		LIMIT ?
	`
	args = append(args, limit)

	result, err := r.db.ExecContext(ctx, claim, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}

	claimed, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get claimed count: %w", err)
	}
	if claimed == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE claim_token = ?
		ORDER BY attempts ASC, created_at ASC
	`

	var jobs []domain.Job
	if err := r.db.SelectContext(ctx, &jobs, query, token); err != nil {
		return nil, fmt.Errorf("failed to load claimed jobs: %w", err)
	}

	return jobs, nil
}

// RecordAttempt appends to the attempt history, advances the attempt count,
// recomputes the job state and upserts the operator counters, all in one
// transaction. Returns false (without error) when the job id is unknown.
func (r *JobRepository) RecordAttempt(
	ctx context.Context,
	jobID int64,
	operator string,
	success bool,
	response, errText *string,
	latencyMs *int64,
) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var job struct {
		PhoneNumber string `db:"phone_number"`
		Attempts    int    `db:"attempts"`
		MaxAttempts int    `db:"max_attempts"`
	}

	err = tx.GetContext(ctx, &job,
		`SELECT phone_number, attempts, max_attempts FROM jobs WHERE id = ? FOR UPDATE`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load job %d: %w", jobID, err)
	}

	now := time.Now().UTC()
	attempt := job.Attempts + 1

	var status domain.JobStatus
	var nextRetry *time.Time
	outcome := domain.OutcomeError

	switch {
	case success:
		status = domain.StatusSent
		outcome = domain.OutcomeSent
	case attempt < job.MaxAttempts:
		status = domain.StatusRetrying
		delay := domain.BackoffDelays[len(domain.BackoffDelays)-1]
		if job.Attempts < len(domain.BackoffDelays) {
			delay = domain.BackoffDelays[job.Attempts]
		}
		at := now.Add(delay)
		nextRetry = &at
	default:
		status = domain.StatusFailed
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET
			status = ?,
			attempts = ?,
			operator = ?,
			last_response = ?,
			last_error = ?,
			next_retry_at = ?,
			last_attempt_at = ?,
			first_attempt_at = COALESCE(first_attempt_at, ?),
			claim_token = NULL,
			claimed_until = NULL
		WHERE id = ?
	`, status, attempt, operator, response, errText, nextRetry, now, now, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to update job %d: %w", jobID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attempt_log (job_id, phone_number, operator, attempt, outcome, response, error, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, jobID, job.PhoneNumber, operator, attempt, outcome, response, errText, latencyMs, now)
	if err != nil {
		return false, fmt.Errorf("failed to append attempt log: %w", err)
	}

	if err := upsertOperatorStats(ctx, tx, operator, success, attempt, errText, latencyMs, now); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit attempt: %w", err)
	}

	return true, nil
}

// upsertOperatorStats keeps the per-operator counters in lockstep with the
// attempt log. Runs inside the RecordAttempt transaction.
func upsertOperatorStats(
	ctx context.Context,
	tx *sqlx.Tx,
	operator string,
	success bool,
	attempt int,
	errText *string,
	latencyMs *int64,
	now time.Time,
) error {
	var failedDelta, retriedDelta int64
	if !success {
		failedDelta = 1
	}
	if attempt > 1 {
		retriedDelta = 1
	}

	var latency float64
	if latencyMs != nil {
		latency = float64(*latencyMs)
	}

	var lastErrorAt, lastSuccessAt *time.Time
	if success {
		lastSuccessAt = &now
	} else {
		lastErrorAt = &now
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO operator_stats
			(operator, total_sent, total_failed, total_retried, avg_latency_ms,
			 last_error, last_error_at, last_success_at, error_rate, updated_at)
		VALUES (?, 1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			avg_latency_ms  = (avg_latency_ms * total_sent + VALUES(avg_latency_ms)) / (total_sent + 1),
			total_sent      = total_sent + 1,
			total_failed    = total_failed + VALUES(total_failed),
			total_retried   = total_retried + VALUES(total_retried),
			last_error      = COALESCE(VALUES(last_error), last_error),
			last_error_at   = COALESCE(VALUES(last_error_at), last_error_at),
			last_success_at = COALESCE(VALUES(last_success_at), last_success_at),
			error_rate      = total_failed / GREATEST(total_sent, 1),
			updated_at      = VALUES(updated_at)
	`, operator, failedDelta, retriedDelta, latency,
		errText, lastErrorAt, lastSuccessAt, failedDelta, now)
	if err != nil {
		return fmt.Errorf("failed to upsert operator stats: %w", err)
	}

	return nil
}

// ConfirmDelivery transitions the most recent non-delivered job for the
// number to delivered. Idempotent: a second confirmation finds nothing and
// returns false.
func (r *JobRepository) ConfirmDelivery(ctx context.Context, number string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var job struct {
		ID       int64   `db:"id"`
		Operator *string `db:"operator"`
	}

	err = tx.GetContext(ctx, &job, `
		SELECT id, operator FROM jobs
		WHERE phone_number = ? AND status != 'delivered'
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to find job for %s: %w", number, err)
	}

	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET
			status = 'delivered',
			confirmed = 1,
			confirmed_at = ?,
			next_retry_at = NULL,
			claim_token = NULL,
			claimed_until = NULL
		WHERE id = ?
	`, now, job.ID)
	if err != nil {
		return false, fmt.Errorf("failed to confirm delivery for job %d: %w", job.ID, err)
	}

	if job.Operator != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE operator_stats SET total_delivered = total_delivered + 1, updated_at = ?
			WHERE operator = ?
		`, now, *job.Operator)
		if err != nil {
			return false, fmt.Errorf("failed to bump delivered counter: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit confirmation: %w", err)
	}

	return true, nil
}

// AggregateState returns queue-wide counts by status.
func (r *JobRepository) AggregateState(ctx context.Context) (*domain.AggregateState, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0)   AS pending,
			COALESCE(SUM(CASE WHEN status = 'retrying' THEN 1 ELSE 0 END), 0)  AS retrying,
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0)      AS sent,
			COALESCE(SUM(CASE WHEN status = 'delivered' THEN 1 ELSE 0 END), 0) AS delivered,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)    AS failed,
			COUNT(*)                                                           AS total
		FROM jobs
	`

	var state domain.AggregateState
	if err := r.db.GetContext(ctx, &state, query); err != nil {
		return nil, fmt.Errorf("failed to aggregate queue state: %w", err)
	}

	return &state, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id int64) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	var job domain.Job
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job %d: %w", id, err)
	}

	return &job, nil
}

// GetAll returns a page of jobs, optionally filtered by status, newest first.
func (r *JobRepository) GetAll(
	ctx context.Context,
	status *domain.JobStatus,
	page, pageSize int,
) ([]domain.Job, int64, error) {
	offset := (page - 1) * pageSize

	var totalCount int64
	var jobs []domain.Job

	if status != nil {
		if err := r.db.GetContext(ctx, &totalCount,
			`SELECT COUNT(*) FROM jobs WHERE status = ?`, *status); err != nil {
			return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
		}

		query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
		if err := r.db.SelectContext(ctx, &jobs, query, *status, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
		}
	} else {
		if err := r.db.GetContext(ctx, &totalCount, `SELECT COUNT(*) FROM jobs`); err != nil {
			return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
		}

		query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC LIMIT ? OFFSET ?`
		if err := r.db.SelectContext(ctx, &jobs, query, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
		}
	}

	return jobs, totalCount, nil
}

// AttemptHistory returns the ordered attempt log for one job.
func (r *JobRepository) AttemptHistory(ctx context.Context, jobID int64) ([]domain.AttemptLogEntry, error) {
	query := `
		SELECT id, job_id, phone_number, operator, attempt, outcome, response, error, latency_ms, created_at
		FROM attempt_log
		WHERE job_id = ?
		ORDER BY attempt ASC
	`

	var entries []domain.AttemptLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to load attempt history: %w", err)
	}

	return entries, nil
}

func newClaimToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate claim token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
