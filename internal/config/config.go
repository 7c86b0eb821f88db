// Package config defines the top-level configuration for the creditpool
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/pipeline"
	"github.com/alanyoungcy/creditpool/internal/risk"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CREDITPOOL_* environment variables.
type Config struct {
	Postgres     PostgresConfig     `toml:"postgres"`
	Redis        RedisConfig        `toml:"redis"`
	S3           S3Config           `toml:"s3"`
	Server       ServerConfig       `toml:"server"`
	Notify       NotifyConfig       `toml:"notify"`
	Engine       EngineConfig       `toml:"engine"`
	Provisioning ProvisioningConfig `toml:"provisioning"`
	Report       ReportConfig       `toml:"report"`
	Ingest       IngestConfig       `toml:"ingest"`
	Mode         string             `toml:"mode"`
	LogLevel     string             `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters. DSN takes precedence
// over the individual fields when set.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"sslmode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	URL        string `toml:"url"` // redis:// or rediss://; overrides addr, password, db and tls
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters. Export and archive
// are disabled when Bucket is empty.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// SSE is the server-side encryption applied to every upload: "",
	// "AES256" or "aws:kms".
	SSE      string `toml:"sse"`
	KMSKeyID string `toml:"kms_key_id"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey enables Bearer / X-API-Key authentication when non-empty.
	APIKey     string   `toml:"api_key"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials. Events filters which
// run events are forwarded; empty forwards all.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// EngineConfig holds the quantitative engine defaults.
type EngineConfig struct {
	// LossRates maps bucket labels ("Current", "1-30", ...) to severities.
	// Missing labels keep the built-in defaults.
	LossRates         map[string]float64 `toml:"loss_rates"`
	Scenario          string             `toml:"scenario"`
	Periods           int                `toml:"periods"`
	FacilityAmount    float64            `toml:"facility_amount"`
	StressLossRates   []float64          `toml:"stress_loss_rates"`
	StressPrepayRates []float64          `toml:"stress_prepay_rates"`
	SweepWorkers      int                `toml:"sweep_workers"`
	GridCacheTTL      duration           `toml:"grid_cache_ttl"`
	LockTTL           duration           `toml:"lock_ttl"`

	// ArchiveCron is a five-field cron expression; runs older than
	// ArchiveRetentionDays move to the bucket when it fires. Zero days
	// disables archiving.
	ArchiveRetentionDays int    `toml:"archive_retention_days"`
	ArchiveCron          string `toml:"archive_cron"`
}

// ProvisioningConfig holds the default rule sets applied to portfolios that
// have no stored policy.
type ProvisioningConfig struct {
	NBFI   domain.RuleSet `toml:"nbfi"`
	Lender domain.RuleSet `toml:"lender"`
}

// ReportConfig drives the one-shot report mode.
type ReportConfig struct {
	PortfolioID string `toml:"portfolio_id"`
	StructureID string `toml:"structure_id"`
}

// IngestConfig drives the loan-tape drop folder. CSV tapes uploaded under
// Prefix + "{portfolio_id}/" are imported on every Interval tick.
type IngestConfig struct {
	Enabled  bool     `toml:"enabled"`
	Prefix   string   `toml:"prefix"`
	Interval duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "creditpool",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "creditpool-reports",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8000,
			RateLimit:  120,
			RateWindow: duration{time.Minute},
		},
		Engine: EngineConfig{
			Scenario:             risk.ScenarioBase,
			Periods:              domain.DefaultPeriods,
			StressLossRates:      []float64{3, 6, 9, 12, 15},
			StressPrepayRates:    []float64{0, 10, 20, 30},
			SweepWorkers:         4,
			GridCacheTTL:         duration{10 * time.Minute},
			LockTTL:              duration{30 * time.Second},
			ArchiveRetentionDays: 90,
			ArchiveCron:          "0 3 * * *",
		},
		Provisioning: ProvisioningConfig{
			NBFI:   risk.DefaultNBFIRules(),
			Lender: risk.DefaultLenderRules(),
		},
		Ingest: IngestConfig{
			Prefix:   "incoming/",
			Interval: duration{15 * time.Minute},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server": true,
	"report": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, report)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" && c.Redis.URL == "" {
		errs = append(errs, "redis: addr or url must be set")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is optional; a bucket without a region cannot be addressed.
	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must be set when bucket is set")
	}
	switch c.S3.SSE {
	case "", "AES256", "aws:kms":
	default:
		errs = append(errs, fmt.Sprintf("s3: unknown sse %q (valid: AES256, aws:kms)", c.S3.SSE))
	}
	if c.S3.KMSKeyID != "" && c.S3.SSE != "aws:kms" {
		errs = append(errs, "s3: kms_key_id requires sse = \"aws:kms\"")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Engine
	if _, err := risk.LossRateTableFromMap(c.Engine.LossRates); err != nil {
		errs = append(errs, fmt.Sprintf("engine: loss_rates: %v", err))
	}
	if _, err := risk.ScenarioMatrix(c.Engine.Scenario); err != nil {
		errs = append(errs, fmt.Sprintf("engine: scenario: %v", err))
	}
	if c.Engine.Periods < 1 || c.Engine.Periods > domain.MaxPeriods {
		errs = append(errs, fmt.Sprintf("engine: periods must be in [1,%d]", domain.MaxPeriods))
	}
	if c.Engine.FacilityAmount < 0 {
		errs = append(errs, "engine: facility_amount must be >= 0")
	}
	for _, r := range c.Engine.StressLossRates {
		if r < 0 || r > 100 {
			errs = append(errs, fmt.Sprintf("engine: stress_loss_rates value %v outside [0,100]", r))
		}
	}
	for _, r := range c.Engine.StressPrepayRates {
		if r < 0 || r > 100 {
			errs = append(errs, fmt.Sprintf("engine: stress_prepay_rates value %v outside [0,100]", r))
		}
	}
	if n := len(c.Engine.StressLossRates) * len(c.Engine.StressPrepayRates); n > domain.MaxGridCells {
		errs = append(errs, fmt.Sprintf("engine: stress grid has %d cells, max %d", n, domain.MaxGridCells))
	}
	if c.Engine.SweepWorkers < 1 {
		errs = append(errs, "engine: sweep_workers must be >= 1")
	}
	if c.Engine.GridCacheTTL.Duration < 0 {
		errs = append(errs, "engine: grid_cache_ttl must not be negative")
	}
	if c.Engine.LockTTL.Duration <= 0 {
		errs = append(errs, "engine: lock_ttl must be positive")
	}
	if c.Engine.ArchiveRetentionDays < 0 {
		errs = append(errs, "engine: archive_retention_days must be >= 0")
	}
	if c.Engine.ArchiveRetentionDays > 0 {
		if err := pipeline.ValidateCron(c.Engine.ArchiveCron); err != nil {
			errs = append(errs, fmt.Sprintf("engine: archive_cron: %v", err))
		}
	}
	if c.Ingest.Enabled {
		if strings.TrimSpace(c.Ingest.Prefix) == "" {
			errs = append(errs, "ingest: prefix must not be empty")
		}
		if c.Ingest.Interval.Duration <= 0 {
			errs = append(errs, "ingest: interval must be positive")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "ingest: s3.bucket must be set")
		}
	}

	// Provisioning
	if err := risk.ValidateRules(c.Provisioning.NBFI); err != nil {
		errs = append(errs, fmt.Sprintf("provisioning: nbfi: %v", err))
	}
	if err := risk.ValidateRules(c.Provisioning.Lender); err != nil {
		errs = append(errs, fmt.Sprintf("provisioning: lender: %v", err))
	}

	// Report mode needs a portfolio to report on.
	if strings.EqualFold(c.Mode, "report") && c.Report.PortfolioID == "" {
		errs = append(errs, "report: portfolio_id is required for mode report")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LossRateTable resolves the configured loss rates over the defaults.
func (c *Config) LossRateTable() (risk.LossRateTable, error) {
	return risk.LossRateTableFromMap(c.Engine.LossRates)
}
