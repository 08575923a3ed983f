package domain

import "time"

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRetrying  JobStatus = "retrying"
	StatusSent      JobStatus = "sent"
	StatusDelivered JobStatus = "delivered"
	StatusFailed    JobStatus = "failed"
)

// DefaultMaxAttempts is the attempt budget for a job unless the enrollment
// overrides it.
const DefaultMaxAttempts = 5

// BackoffDelays maps attempt index 0..4 to the wait before the next retry.
// Index 5+ is unreachable with the default attempt budget.
var BackoffDelays = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
	5 * time.Minute,
	30 * time.Minute,
}

// Job is one message enqueued for delivery to one recipient. The tuple
// (phone_number, content, campaign_id) is unique; duplicate enrollments are
// rejected rather than merged.
type Job struct {
	ID             int64      `db:"id" json:"id"`
	PhoneNumber    string     `db:"phone_number" json:"phoneNumber"`
	Content        string     `db:"content" json:"content"`
	CampaignID     string     `db:"campaign_id" json:"campaignId,omitempty"`
	Status         JobStatus  `db:"status" json:"status"`
	Attempts       int        `db:"attempts" json:"attempts"`
	MaxAttempts    int        `db:"max_attempts" json:"maxAttempts"`
	Operator       *string    `db:"operator" json:"operator,omitempty"`
	Metadata       Metadata   `db:"metadata" json:"metadata,omitempty"`
	NextRetryAt    *time.Time `db:"next_retry_at" json:"nextRetryAt,omitempty"`
	LastError      *string    `db:"last_error" json:"lastError,omitempty"`
	LastResponse   *string    `db:"last_response" json:"lastResponse,omitempty"`
	Confirmed      bool       `db:"confirmed" json:"confirmed"`
	ConfirmedAt    *time.Time `db:"confirmed_at" json:"confirmedAt,omitempty"`
	ClaimToken     *string    `db:"claim_token" json:"-"`
	ClaimedUntil   *time.Time `db:"claimed_until" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	FirstAttemptAt *time.Time `db:"first_attempt_at" json:"firstAttemptAt,omitempty"`
	LastAttemptAt  *time.Time `db:"last_attempt_at" json:"lastAttemptAt,omitempty"`
}

// Terminal reports whether the attempt loop is done with this job.
// Delivered jobs stay delivered; failed jobs can still be confirmed
// delivered later by a carrier report, but never re-sent.
func (j *Job) Terminal() bool {
	return j.Status == StatusDelivered || j.Status == StatusFailed
}

// AttemptLogEntry is one append-only record of a delivery attempt.
type AttemptLogEntry struct {
	ID          int64     `db:"id" json:"id"`
	JobID       int64     `db:"job_id" json:"jobId"`
	PhoneNumber string    `db:"phone_number" json:"phoneNumber"`
	Operator    string    `db:"operator" json:"operator"`
	Attempt     int       `db:"attempt" json:"attempt"`
	Outcome     string    `db:"outcome" json:"outcome"`
	Response    *string   `db:"response" json:"response,omitempty"`
	Error       *string   `db:"error" json:"error,omitempty"`
	LatencyMs   *int64    `db:"latency_ms" json:"latencyMs,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Attempt outcomes as stored in the attempt log.
const (
	OutcomeSent  = "sent"
	OutcomeError = "error"
)

// AggregateState holds the queue-wide counts by status.
type AggregateState struct {
	Pending   int64 `db:"pending" json:"pending"`
	Retrying  int64 `db:"retrying" json:"retrying"`
	Sent      int64 `db:"sent" json:"sent"`
	Delivered int64 `db:"delivered" json:"delivered"`
	Failed    int64 `db:"failed" json:"failed"`
	Total     int64 `db:"total" json:"total"`
}

// TransportReceipt is a successful transport call as seen on the wire.
type TransportReceipt struct {
	TrackingID  string `json:"trackingId"`
	RawResponse string `json:"rawResponse"`
	LatencyMs   int64  `json:"latencyMs"`
}

// SendOutcome is the classified result of one transport attempt.
type SendOutcome struct {
	JobID       int64  `json:"jobId"`
	Operator    string `json:"operator"`
	Success     bool   `json:"success"`
	TrackingID  string `json:"trackingId,omitempty"`
	RawResponse string `json:"rawResponse,omitempty"`
	Error       error  `json:"-"`
	ErrorText   string `json:"error,omitempty"`
	LatencyMs   int64  `json:"latencyMs"`
}
