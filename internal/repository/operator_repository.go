package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
)

// OperatorRepository persists operator profiles and exposes the aggregated
// stats rows written by the job repository.
type OperatorRepository struct {
	db *sqlx.DB
}

func NewOperatorRepository(db *sqlx.DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

func (r *OperatorRepository) GetAll(ctx context.Context) ([]domain.OperatorProfile, error) {
	query := `
		SELECT id, name, api_url, account, secret, sender_id, priority,
		       max_per_minute, max_retries, timeout_seconds, enabled, updated_at
		FROM operator_profiles
		ORDER BY priority ASC, name ASC
	`

	var profiles []domain.OperatorProfile
	if err := r.db.SelectContext(ctx, &profiles, query); err != nil {
		return nil, fmt.Errorf("failed to list operators: %w", err)
	}

	return profiles, nil
}

func (r *OperatorRepository) GetByName(ctx context.Context, name string) (*domain.OperatorProfile, error) {
	query := `
		SELECT id, name, api_url, account, secret, sender_id, priority,
		       max_per_minute, max_retries, timeout_seconds, enabled, updated_at
		FROM operator_profiles
		WHERE name = ?
	`

	var profile domain.OperatorProfile
	if err := r.db.GetContext(ctx, &profile, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get operator %s: %w", name, err)
	}

	return &profile, nil
}

// SetEnabled flips the administrative flag. Returns false if the operator
// name is unknown.
func (r *OperatorRepository) SetEnabled(ctx context.Context, name string, enabled bool) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE operator_profiles SET enabled = ?, updated_at = ? WHERE name = ?`,
		enabled, time.Now().UTC(), name)
	if err != nil {
		return false, fmt.Errorf("failed to set operator enabled: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// Stats returns the per-operator counters, one row per operator that has
// recorded at least one attempt.
func (r *OperatorRepository) Stats(ctx context.Context) ([]domain.OperatorStats, error) {
	query := `
		SELECT operator, total_sent, total_delivered, total_failed, total_retried,
		       avg_latency_ms, last_error, last_error_at, last_success_at, error_rate, updated_at
		FROM operator_stats
		ORDER BY operator ASC
	`

	var stats []domain.OperatorStats
	if err := r.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to load operator stats: %w", err)
	}

	return stats, nil
}
