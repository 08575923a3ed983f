package domain

import "time"

// OperatorProfile is one configured delivery gateway. Profiles are only
// mutated through enable/disable; they are never deleted while historical
// jobs reference them.
type OperatorProfile struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	APIURL       string    `db:"api_url" json:"apiUrl"`
	Account      string    `db:"account" json:"account"`
	Secret       string    `db:"secret" json:"-"`
	SenderID     string    `db:"sender_id" json:"senderId"`
	Priority     int       `db:"priority" json:"priority"`
	MaxPerMinute int       `db:"max_per_minute" json:"maxPerMinute"`
	MaxRetries   int       `db:"max_retries" json:"maxRetries"`
	Timeout      int       `db:"timeout_seconds" json:"timeoutSeconds"`
	Enabled      bool      `db:"enabled" json:"enabled"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// OperatorStats are the aggregated counters for one operator. They are
// upserted inside the same transaction as the attempt-log insert so they
// cannot drift from the log.
type OperatorStats struct {
	Operator       string     `db:"operator" json:"operator"`
	TotalSent      int64      `db:"total_sent" json:"totalSent"`
	TotalDelivered int64      `db:"total_delivered" json:"totalDelivered"`
	TotalFailed    int64      `db:"total_failed" json:"totalFailed"`
	TotalRetried   int64      `db:"total_retried" json:"totalRetried"`
	AvgLatencyMs   float64    `db:"avg_latency_ms" json:"avgLatencyMs"`
	LastError      *string    `db:"last_error" json:"lastError,omitempty"`
	LastErrorAt    *time.Time `db:"last_error_at" json:"lastErrorAt,omitempty"`
	LastSuccessAt  *time.Time `db:"last_success_at" json:"lastSuccessAt,omitempty"`
	ErrorRate      float64    `db:"error_rate" json:"errorRate"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

// AlertSeverity levels produced by the health monitor.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// Alert is a derived health finding. Alerts are recomputed on demand and
// never persisted.
type Alert struct {
	Severity AlertSeverity `json:"severity"`
	Operator string        `json:"operator"`
	Message  string        `json:"message"`
}

// Canonical delivery-report vocabulary. Carrier status codes are mapped
// into this set before they touch the queue.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryInvalid   DeliveryStatus = "invalid"
	DeliveryUnknown   DeliveryStatus = "unknown"
)

// DeliveryReport is a carrier-originated confirmation signal.
type DeliveryReport struct {
	TrackingID string         `json:"trackingId"`
	Status     DeliveryStatus `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
}
