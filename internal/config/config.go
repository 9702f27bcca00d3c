package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration for the loan chat service.
type Config struct {
	// Service Configuration
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"loanflow-api"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"LOANFLOW_API_PORT" envDefault:"8288"`
	LogLevel        string        `env:"LOANFLOW_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOANFLOW_LOG_FORMAT" envDefault:"console"`
	EnableTracing   bool          `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// External API Endpoints
	CRMAPIURL           string        `env:"CRM_API_URL" envDefault:"http://localhost:3001"`
	CreditBureauAPIURL  string        `env:"CREDIT_BUREAU_API_URL" envDefault:"http://localhost:3002"`
	OfferMartAPIURL     string        `env:"OFFER_MART_API_URL" envDefault:"http://localhost:3003"`
	CRMTimeout          time.Duration `env:"CRM_API_TIMEOUT" envDefault:"30s"`
	CreditBureauTimeout time.Duration `env:"CREDIT_BUREAU_API_TIMEOUT" envDefault:"45s"`
	OfferMartTimeout    time.Duration `env:"OFFER_MART_API_TIMEOUT" envDefault:"30s"`

	// Resilience Tuning
	BreakerFailureThreshold int           `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	BreakerSuccessThreshold int           `env:"BREAKER_SUCCESS_THRESHOLD" envDefault:"3"`
	BreakerRecoveryTimeout  time.Duration `env:"BREAKER_RECOVERY_TIMEOUT" envDefault:"60s"`
	RetryMaxAttempts        int           `env:"API_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay          time.Duration `env:"API_RETRY_BASE_DELAY" envDefault:"1s"`
	RetryMaxDelay           time.Duration `env:"API_RETRY_MAX_DELAY" envDefault:"60s"`

	// State Persistence
	ContextStoragePath    string `env:"CONTEXT_STORAGE_PATH" envDefault:"data/conversation_contexts"`
	VerificationStorePath string `env:"VERIFICATION_STORE_PATH" envDefault:"data/verification_records.json"`
	HistoryStoragePath    string `env:"HISTORY_STORAGE_PATH" envDefault:"data/history"`
	UploadsPath           string `env:"UPLOAD_FOLDER" envDefault:"uploads"`
	SanctionLetterPath    string `env:"SANCTION_LETTER_PATH" envDefault:"uploads/sanction_letters"`
	MaxUploadBytes        int64  `env:"MAX_CONTENT_LENGTH" envDefault:"16777216"`

	// History Database (optional, JSON file backend used when unset)
	DBPostgresqlDSN string        `env:"DB_POSTGRESQL_DSN"`
	DBMaxIdleConns  int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns  int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime  time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Cleanup Jobs
	CleanupEnabled            bool          `env:"CLEANUP_ENABLED" envDefault:"true"`
	ContextRetention          time.Duration `env:"CONTEXT_RETENTION" envDefault:"24h"`
	VerificationRetentionDays int           `env:"VERIFICATION_RETENTION_DAYS" envDefault:"90"`
	SanctionRetentionDays     int           `env:"SANCTION_RETENTION_DAYS" envDefault:"30"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.CRMAPIURL = strings.TrimRight(strings.TrimSpace(cfg.CRMAPIURL), "/")
	cfg.CreditBureauAPIURL = strings.TrimRight(strings.TrimSpace(cfg.CreditBureauAPIURL), "/")
	cfg.OfferMartAPIURL = strings.TrimRight(strings.TrimSpace(cfg.OfferMartAPIURL), "/")
	cfg.DBPostgresqlDSN = strings.TrimSpace(cfg.DBPostgresqlDSN)

	if cfg.BreakerFailureThreshold <= 0 {
		return nil, fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be positive")
	}
	if cfg.BreakerSuccessThreshold <= 0 {
		return nil, fmt.Errorf("BREAKER_SUCCESS_THRESHOLD must be positive")
	}
	if cfg.RetryMaxAttempts < 0 {
		return nil, fmt.Errorf("API_RETRY_MAX_ATTEMPTS must not be negative")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 16 * 1024 * 1024
	}
	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

// UseDatabaseHistory reports whether application history should be stored in Postgres.
func (c *Config) UseDatabaseHistory() bool {
	return c.DBPostgresqlDSN != ""
}
