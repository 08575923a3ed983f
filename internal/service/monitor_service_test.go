package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
)

type fakeAggregate struct {
	state domain.AggregateState
}

func (f *fakeAggregate) AggregateState(ctx context.Context) (*domain.AggregateState, error) {
	state := f.state
	return &state, nil
}

type fakeStats struct {
	stats []domain.OperatorStats
}

func (f *fakeStats) Stats(ctx context.Context) ([]domain.OperatorStats, error) {
	return f.stats, nil
}

func newTestMonitor(state domain.AggregateState, stats []domain.OperatorStats) *MonitorService {
	m := NewMonitorService(&fakeAggregate{state: state}, &fakeStats{stats: stats}, nil, 1000, 5*time.Minute)
	m.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

func hasAlert(alerts []domain.Alert, severity domain.AlertSeverity, fragment string) bool {
	for _, a := range alerts {
		if a.Severity == severity && strings.Contains(a.Message, fragment) {
			return true
		}
	}
	return false
}

func TestCheckHealth_Healthy(t *testing.T) {
	m := newTestMonitor(domain.AggregateState{
		Pending: 10, Sent: 80, Delivered: 10, Total: 100,
	}, nil)

	summary, err := m.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !summary.Healthy {
		t.Errorf("expected healthy, got alerts %+v", summary.Alerts)
	}
	if summary.Backlog != 10 {
		t.Errorf("expected backlog 10, got %d", summary.Backlog)
	}
}

func TestCheckHealth_CriticalGlobalErrorRate(t *testing.T) {
	m := newTestMonitor(domain.AggregateState{
		Sent: 40, Failed: 60, Total: 100,
	}, nil)

	summary, err := m.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Healthy {
		t.Fatal("expected unhealthy")
	}
	if !hasAlert(summary.Alerts, domain.SeverityCritical, "global error rate") {
		t.Errorf("expected critical global error rate alert, got %+v", summary.Alerts)
	}
}

func TestCheckHealth_WarningGlobalErrorRate(t *testing.T) {
	m := newTestMonitor(domain.AggregateState{
		Sent: 75, Failed: 25, Total: 100,
	}, nil)

	summary, err := m.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasAlert(summary.Alerts, domain.SeverityWarning, "global error rate") {
		t.Errorf("expected warning global error rate alert, got %+v", summary.Alerts)
	}
	if hasAlert(summary.Alerts, domain.SeverityCritical, "global error rate") {
		t.Error("expected no critical alert at 25%")
	}
}

func TestCheckHealth_BacklogAlert(t *testing.T) {
	m := newTestMonitor(domain.AggregateState{
		Pending: 900, Retrying: 200, Total: 1100,
	}, nil)

	summary, err := m.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasAlert(summary.Alerts, domain.SeverityWarning, "backlog") {
		t.Errorf("expected backlog alert, got %+v", summary.Alerts)
	}
}

func TestCheckHealth_OperatorErrorRate(t *testing.T) {
	m := newTestMonitor(domain.AggregateState{Sent: 100, Total: 100}, []domain.OperatorStats{
		{Operator: "primary", ErrorRate: 0.55},
		{Operator: "backup", ErrorRate: 0.25},
		{Operator: "tertiary", ErrorRate: 0.01},
	})

	summary, err := m.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasAlert(summary.Alerts, domain.SeverityCritical, "primary") {
		t.Errorf("expected critical alert for primary, got %+v", summary.Alerts)
	}
	if !hasAlert(summary.Alerts, domain.SeverityWarning, "backup") {
		t.Errorf("expected warning alert for backup, got %+v", summary.Alerts)
	}
	if hasAlert(summary.Alerts, domain.SeverityWarning, "tertiary") ||
		hasAlert(summary.Alerts, domain.SeverityCritical, "tertiary") {
		t.Error("expected no alert for tertiary")
	}
}

func TestCheckHealth_StaleOperator(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lastError := now.Add(-time.Minute)
	oldSuccess := now.Add(-time.Hour)

	m := newTestMonitor(domain.AggregateState{Sent: 100, Total: 100}, []domain.OperatorStats{
		{Operator: "primary", LastErrorAt: &lastError, LastSuccessAt: &oldSuccess},
	})

	summary, err := m.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasAlert(summary.Alerts, domain.SeverityWarning, "no recent successful sends") {
		t.Errorf("expected staleness warning, got %+v", summary.Alerts)
	}
	if hasAlert(summary.Alerts, domain.SeverityCritical, "no recent successful sends") {
		t.Errorf("expected staleness to stay at warning, got %+v", summary.Alerts)
	}
}

func TestCheckHealth_RecentSuccessSuppressesStaleness(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lastError := now.Add(-time.Minute)
	recentSuccess := now.Add(-30 * time.Second)

	m := newTestMonitor(domain.AggregateState{Sent: 100, Total: 100}, []domain.OperatorStats{
		{Operator: "primary", LastErrorAt: &lastError, LastSuccessAt: &recentSuccess},
	})

	summary, err := m.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasAlert(summary.Alerts, domain.SeverityWarning, "no recent successful sends") {
		t.Errorf("expected no staleness alert, got %+v", summary.Alerts)
	}
}

// TestCheckHealth_BacklogDoesNotInflateErrorRate pins the error-rate
// denominator to the whole queue. A mostly-pending queue with a few
// failures is not a delivery crisis.
func TestCheckHealth_BacklogDoesNotInflateErrorRate(t *testing.T) {
	m := newTestMonitor(domain.AggregateState{
		Pending: 90, Failed: 10, Total: 100,
	}, nil)

	summary, err := m.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ErrorRate != 0.10 {
		t.Errorf("expected error rate 0.10, got %v", summary.ErrorRate)
	}
	if hasAlert(summary.Alerts, domain.SeverityCritical, "global error rate") ||
		hasAlert(summary.Alerts, domain.SeverityWarning, "global error rate") {
		t.Errorf("expected no error-rate alert, got %+v", summary.Alerts)
	}
}

func TestReport_RendersAlerts(t *testing.T) {
	m := newTestMonitor(domain.AggregateState{Sent: 40, Failed: 60, Total: 100}, nil)

	report, err := m.Report(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(report, "CRITICAL") {
		t.Errorf("expected CRITICAL in report, got:\n%s", report)
	}

	healthy := newTestMonitor(domain.AggregateState{Sent: 100, Total: 100}, nil)
	report, err = healthy.Report(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(report, "HEALTHY") {
		t.Errorf("expected HEALTHY in report, got:\n%s", report)
	}
}
