package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CREDITPOOL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CREDITPOOL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CREDITPOOL_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "CREDITPOOL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CREDITPOOL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CREDITPOOL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CREDITPOOL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CREDITPOOL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CREDITPOOL_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CREDITPOOL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CREDITPOOL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CREDITPOOL_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "CREDITPOOL_REDIS_URL")
	setStr(&cfg.Redis.Addr, "CREDITPOOL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CREDITPOOL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CREDITPOOL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CREDITPOOL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CREDITPOOL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CREDITPOOL_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CREDITPOOL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CREDITPOOL_S3_REGION")
	setStr(&cfg.S3.Bucket, "CREDITPOOL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CREDITPOOL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CREDITPOOL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CREDITPOOL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CREDITPOOL_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.SSE, "CREDITPOOL_S3_SSE")
	setStr(&cfg.S3.KMSKeyID, "CREDITPOOL_S3_KMS_KEY_ID")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CREDITPOOL_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CREDITPOOL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CREDITPOOL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CREDITPOOL_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CREDITPOOL_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CREDITPOOL_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CREDITPOOL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CREDITPOOL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CREDITPOOL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CREDITPOOL_NOTIFY_EVENTS")

	// ── Engine ──
	setStr(&cfg.Engine.Scenario, "CREDITPOOL_ENGINE_SCENARIO")
	setInt(&cfg.Engine.Periods, "CREDITPOOL_ENGINE_PERIODS")
	setFloat64(&cfg.Engine.FacilityAmount, "CREDITPOOL_ENGINE_FACILITY_AMOUNT")
	setFloatSlice(&cfg.Engine.StressLossRates, "CREDITPOOL_ENGINE_STRESS_LOSS_RATES")
	setFloatSlice(&cfg.Engine.StressPrepayRates, "CREDITPOOL_ENGINE_STRESS_PREPAY_RATES")
	setInt(&cfg.Engine.SweepWorkers, "CREDITPOOL_ENGINE_SWEEP_WORKERS")
	setDuration(&cfg.Engine.GridCacheTTL, "CREDITPOOL_ENGINE_GRID_CACHE_TTL")
	setDuration(&cfg.Engine.LockTTL, "CREDITPOOL_ENGINE_LOCK_TTL")
	setInt(&cfg.Engine.ArchiveRetentionDays, "CREDITPOOL_ENGINE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Engine.ArchiveCron, "CREDITPOOL_ENGINE_ARCHIVE_CRON")

	// ── Ingest ──
	setBool(&cfg.Ingest.Enabled, "CREDITPOOL_INGEST_ENABLED")
	setStr(&cfg.Ingest.Prefix, "CREDITPOOL_INGEST_PREFIX")
	setDuration(&cfg.Ingest.Interval, "CREDITPOOL_INGEST_INTERVAL")

	// ── Report ──
	setStr(&cfg.Report.PortfolioID, "CREDITPOOL_REPORT_PORTFOLIO_ID")
	setStr(&cfg.Report.StructureID, "CREDITPOOL_REPORT_STRUCTURE_ID")

	// ── Top-level ──
	setStr(&cfg.Mode, "CREDITPOOL_MODE")
	setStr(&cfg.LogLevel, "CREDITPOOL_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		if cleaned := splitList(v); len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// setFloatSlice replaces dst only when every element parses.
func setFloatSlice(dst *[]float64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := splitList(v)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return
		}
		out = append(out, f)
	}
	if len(out) > 0 {
		*dst = out
	}
}
