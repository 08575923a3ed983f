package environments

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Dispatch  DispatchConfig
	RateLimit RateLimitConfig
	Shortener ShortenerConfig
	Monitor   MonitorConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// DispatchConfig tunes the consumer loops and the claim lease.
type DispatchConfig struct {
	SweepInterval  time.Duration // background sweep period
	SweepBatchSize int           // jobs claimed per sweep pass
	DrainBatchSize int           // jobs claimed per campaign-drain pass
	DrainPause     time.Duration // sleep between drain batches
	FaultCooldown  time.Duration // pause after a loop fault before retrying
	ClaimLease     time.Duration // how long a claimed job stays invisible
	LinkRefreshN   int           // refresh the dynamic link every N messages
}

type RateLimitConfig struct {
	GlobalPerSecond int
	Adaptive        bool
}

type ShortenerConfig struct {
	URL     string
	Timeout time.Duration
}

type MonitorConfig struct {
	BacklogThreshold int64
	StaleAfter       time.Duration
}

type AuthConfig struct {
	MessagesAPIKey string
	AdminAPIKey    string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "3306"),
			User:     GetEnv("DB_USER", "dispatch"),
			Password: GetEnv("DB_PASSWORD", "dispatch123"),
			DBName:   GetEnv("DB_NAME", "sms_dispatch"),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		Dispatch: DispatchConfig{
			SweepInterval:  GetEnvAsDuration("DISPATCH_SWEEP_INTERVAL", 5*time.Second),
			SweepBatchSize: GetEnvAsInt("DISPATCH_SWEEP_BATCH_SIZE", 50),
			DrainBatchSize: GetEnvAsInt("DISPATCH_DRAIN_BATCH_SIZE", 20),
			DrainPause:     GetEnvAsDuration("DISPATCH_DRAIN_PAUSE", 100*time.Millisecond),
			FaultCooldown:  GetEnvAsDuration("DISPATCH_FAULT_COOLDOWN", 10*time.Second),
			ClaimLease:     GetEnvAsDuration("DISPATCH_CLAIM_LEASE", 2*time.Minute),
			LinkRefreshN:   GetEnvAsInt("DISPATCH_LINK_REFRESH_EVERY", 15),
		},
		RateLimit: RateLimitConfig{
			GlobalPerSecond: GetEnvAsInt("RATE_GLOBAL_PER_SECOND", 10),
			Adaptive:        GetEnvAsBool("RATE_ADAPTIVE", true),
		},
		Shortener: ShortenerConfig{
			URL:     GetEnv("SHORTENER_URL", "http://localhost:5001"),
			Timeout: GetEnvAsDuration("SHORTENER_TIMEOUT", 5*time.Second),
		},
		Monitor: MonitorConfig{
			BacklogThreshold: int64(GetEnvAsInt("MONITOR_BACKLOG_THRESHOLD", 1000)),
			StaleAfter:       GetEnvAsDuration("MONITOR_STALE_AFTER", 5*time.Minute),
		},
		Auth: AuthConfig{
			MessagesAPIKey: GetEnv("MESSAGES_API_KEY", ""),
			AdminAPIKey:    GetEnv("ADMIN_API_KEY", ""),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
