package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
	"github.com/jpcardenas/sms-dispatch/internal/ratelimit"
)

// Health thresholds. A global error rate at or above the critical threshold
// means deliveries are mostly failing; the warning band flags degradation
// before it gets there.
const (
	criticalErrorRate = 0.50
	warningErrorRate  = 0.20
)

type aggregateReader interface {
	AggregateState(ctx context.Context) (*domain.AggregateState, error)
}

type statsReader interface {
	Stats(ctx context.Context) ([]domain.OperatorStats, error)
}

type limiterReader interface {
	Snapshot() map[string]ratelimit.LimiterStats
}

// MonitorService derives queue and operator health from the persisted
// counters. It holds no state of its own; every check recomputes from
// the database.
type MonitorService struct {
	jobs             aggregateReader
	operators        statsReader
	limiters         limiterReader
	backlogThreshold int64
	staleAfter       time.Duration
	now              func() time.Time
}

func NewMonitorService(
	jobs aggregateReader,
	operators statsReader,
	limiters limiterReader,
	backlogThreshold int64,
	staleAfter time.Duration,
) *MonitorService {
	return &MonitorService{
		jobs:             jobs,
		operators:        operators,
		limiters:         limiters,
		backlogThreshold: backlogThreshold,
		staleAfter:       staleAfter,
		now:              time.Now,
	}
}

// HealthSummary is the result of one health evaluation. Healthy means no
// alerts fired, not that the queue is empty.
type HealthSummary struct {
	Healthy   bool                   `json:"healthy"`
	Alerts    []domain.Alert         `json:"alerts"`
	Backlog   int64                  `json:"backlog"`
	ErrorRate float64                `json:"errorRate"`
	CheckedAt time.Time              `json:"checkedAt"`
	State     *domain.AggregateState `json:"state"`
}

// CheckHealth evaluates the global error rate, the queue backlog and each
// operator's counters, and returns every alert that fires.
func (m *MonitorService) CheckHealth(ctx context.Context) (*HealthSummary, error) {
	state, err := m.jobs.AggregateState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue state: %w", err)
	}

	stats, err := m.operators.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read operator stats: %w", err)
	}

	now := m.now()
	summary := &HealthSummary{
		Backlog:   state.Pending + state.Retrying,
		ErrorRate: globalErrorRate(state),
		CheckedAt: now,
		State:     state,
		Alerts:    []domain.Alert{},
	}

	if summary.ErrorRate >= criticalErrorRate {
		summary.Alerts = append(summary.Alerts, domain.Alert{
			Severity: domain.SeverityCritical,
			Message:  fmt.Sprintf("global error rate at %.0f%%", summary.ErrorRate*100),
		})
	} else if summary.ErrorRate >= warningErrorRate {
		summary.Alerts = append(summary.Alerts, domain.Alert{
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("global error rate at %.0f%%", summary.ErrorRate*100),
		})
	}

	if summary.Backlog > m.backlogThreshold {
		summary.Alerts = append(summary.Alerts, domain.Alert{
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("backlog of %d jobs exceeds threshold %d", summary.Backlog, m.backlogThreshold),
		})
	}

	for _, op := range stats {
		summary.Alerts = append(summary.Alerts, m.operatorAlerts(op, now)...)
	}

	summary.Healthy = len(summary.Alerts) == 0
	return summary, nil
}

func (m *MonitorService) operatorAlerts(op domain.OperatorStats, now time.Time) []domain.Alert {
	var alerts []domain.Alert

	if op.ErrorRate >= criticalErrorRate {
		alerts = append(alerts, domain.Alert{
			Severity: domain.SeverityCritical,
			Operator: op.Operator,
			Message:  fmt.Sprintf("operator %s error rate at %.0f%%", op.Operator, op.ErrorRate*100),
		})
	} else if op.ErrorRate >= warningErrorRate {
		alerts = append(alerts, domain.Alert{
			Severity: domain.SeverityWarning,
			Operator: op.Operator,
			Message:  fmt.Sprintf("operator %s error rate at %.0f%%", op.Operator, op.ErrorRate*100),
		})
	}

	// An operator that errored recently but has not delivered anything
	// within the staleness window is likely degraded. Warning only; the
	// error-rate check above escalates to critical on its own.
	if op.LastErrorAt != nil {
		stale := op.LastSuccessAt == nil || now.Sub(*op.LastSuccessAt) > m.staleAfter
		recent := now.Sub(*op.LastErrorAt) <= m.staleAfter
		if stale && recent {
			alerts = append(alerts, domain.Alert{
				Severity: domain.SeverityWarning,
				Operator: op.Operator,
				Message:  fmt.Sprintf("operator %s has no recent successful sends", op.Operator),
			})
		}
	}

	return alerts
}

// Dashboard bundles everything the operations view renders in one call.
type Dashboard struct {
	Health    *HealthSummary                    `json:"health"`
	Operators []domain.OperatorStats            `json:"operators"`
	Limiters  map[string]ratelimit.LimiterStats `json:"limiters"`
}

func (m *MonitorService) Dashboard(ctx context.Context) (*Dashboard, error) {
	health, err := m.CheckHealth(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := m.operators.Stats(ctx)
	if err != nil {
		return nil, err
	}

	dash := &Dashboard{Health: health, Operators: stats}
	if m.limiters != nil {
		dash.Limiters = m.limiters.Snapshot()
	}

	return dash, nil
}

// Report renders the health summary as plain text, one finding per line.
func (m *MonitorService) Report(ctx context.Context) (string, error) {
	health, err := m.CheckHealth(ctx)
	if err != nil {
		return "", err
	}

	out := fmt.Sprintf("Queue health at %s\n", health.CheckedAt.Format(time.RFC3339))
	out += fmt.Sprintf("  pending=%d retrying=%d sent=%d delivered=%d failed=%d\n",
		health.State.Pending, health.State.Retrying, health.State.Sent,
		health.State.Delivered, health.State.Failed)
	out += fmt.Sprintf("  backlog=%d errorRate=%.2f\n", health.Backlog, health.ErrorRate)

	if health.Healthy {
		out += "  status: HEALTHY\n"
		return out, nil
	}

	for _, alert := range health.Alerts {
		if alert.Operator != "" {
			out += fmt.Sprintf("  [%s] %s: %s\n", alert.Severity, alert.Operator, alert.Message)
		} else {
			out += fmt.Sprintf("  [%s] %s\n", alert.Severity, alert.Message)
		}
	}

	return out, nil
}

// globalErrorRate is failed over all jobs, not just attempted ones. A big
// pending backlog dilutes the rate on purpose: until those jobs run, a
// handful of failures says nothing about overall delivery health.
func globalErrorRate(state *domain.AggregateState) float64 {
	if state.Total == 0 {
		return 0
	}
	return float64(state.Failed) / float64(state.Total)
}
