package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/jpcardenas/sms-dispatch/environments"
	"github.com/jpcardenas/sms-dispatch/pkg/logger"
)

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database")
	return db, nil
}

// RunMigrations creates the four durable tables: jobs, the append-only
// attempt log, operator profiles and operator stats.
func RunMigrations(db *sqlx.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			phone_number VARCHAR(20) NOT NULL,
			content TEXT NOT NULL,
			campaign_id VARCHAR(64) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			attempts INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL DEFAULT 5,
			operator VARCHAR(64),
			metadata TEXT,
			next_retry_at DATETIME(3),
			last_error TEXT,
			last_response TEXT,
			confirmed TINYINT(1) NOT NULL DEFAULT 0,
			confirmed_at DATETIME(3),
			claim_token CHAR(32),
			claimed_until DATETIME(3),
			created_at DATETIME(3) NOT NULL,
			first_attempt_at DATETIME(3),
			last_attempt_at DATETIME(3),
			content_hash CHAR(32) AS (MD5(content)) STORED,
			UNIQUE KEY uq_jobs_dedupe (phone_number, content_hash, campaign_id),
			INDEX idx_jobs_status (status),
			INDEX idx_jobs_next_retry (next_retry_at),
			INDEX idx_jobs_claim (claim_token),
			INDEX idx_jobs_number (phone_number)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS attempt_log (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			job_id BIGINT NOT NULL,
			phone_number VARCHAR(20) NOT NULL,
			operator VARCHAR(64) NOT NULL,
			attempt INT NOT NULL,
			outcome VARCHAR(20) NOT NULL,
			response TEXT,
			error TEXT,
			latency_ms BIGINT,
			created_at DATETIME(3) NOT NULL,
			INDEX idx_attempt_log_job (job_id),
			INDEX idx_attempt_log_operator (operator),
			CONSTRAINT fk_attempt_log_job FOREIGN KEY (job_id) REFERENCES jobs(id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS operator_profiles (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(64) NOT NULL UNIQUE,
			api_url VARCHAR(255) NOT NULL,
			account VARCHAR(64) NOT NULL,
			secret VARCHAR(128) NOT NULL,
			sender_id VARCHAR(32) NOT NULL,
			priority INT NOT NULL DEFAULT 1,
			max_per_minute INT NOT NULL DEFAULT 100,
			max_retries INT NOT NULL DEFAULT 5,
			timeout_seconds INT NOT NULL DEFAULT 10,
			enabled TINYINT(1) NOT NULL DEFAULT 1,
			updated_at DATETIME(3) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS operator_stats (
			operator VARCHAR(64) PRIMARY KEY,
			total_sent BIGINT NOT NULL DEFAULT 0,
			total_delivered BIGINT NOT NULL DEFAULT 0,
			total_failed BIGINT NOT NULL DEFAULT 0,
			total_retried BIGINT NOT NULL DEFAULT 0,
			avg_latency_ms DOUBLE NOT NULL DEFAULT 0,
			last_error TEXT,
			last_error_at DATETIME(3),
			last_success_at DATETIME(3),
			error_rate DOUBLE NOT NULL DEFAULT 0,
			updated_at DATETIME(3) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,
	}

	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed")

	return nil
}

// SeedOperators inserts the default operator profiles when the table is
// empty. Credentials are placeholders; production values come through the
// admin surface or direct SQL.
func SeedOperators(db *sqlx.DB) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM operator_profiles"); err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Operator profiles already present (%d), skipping seed", count)
		return nil
	}

	operators := []struct {
		name, apiURL, account, secret, senderID string
		priority, maxPerMinute, timeout         int
	}{
		{"primary", "http://gw-primary.example.net:20003", "ACC-PRIMARY", "change-me", "Dispatch", 1, 100, 10},
		{"backup", "http://gw-backup.example.net:20003", "ACC-BACKUP", "change-me", "Dispatch", 2, 60, 10},
	}

	for _, op := range operators {
		_, err := db.Exec(`
			INSERT INTO operator_profiles
				(name, api_url, account, secret, sender_id, priority, max_per_minute, max_retries, timeout_seconds, enabled, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 5, ?, 1, ?)
		`, op.name, op.apiURL, op.account, op.secret, op.senderID,
			op.priority, op.maxPerMinute, op.timeout, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to seed operator %s: %w", op.name, err)
		}
	}

	logger.Infof("Seeded %d operator profiles", len(operators))
	return nil
}
