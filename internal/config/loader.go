package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WHALEWATCH_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WHALEWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Detector ──
	setFloat64(&cfg.Detector.MinOrderValue, "WHALEWATCH_DETECTOR_MIN_ORDER_VALUE")
	setFloat64(&cfg.Detector.MinTradeValue, "WHALEWATCH_DETECTOR_MIN_TRADE_VALUE")
	setFloat64(&cfg.Detector.SignificantMovePct, "WHALEWATCH_DETECTOR_SIGNIFICANT_MOVE_PCT")
	setDuration(&cfg.Detector.DedupWindow, "WHALEWATCH_DETECTOR_DEDUP_WINDOW")
	setInt(&cfg.Detector.DedupCapacity, "WHALEWATCH_DETECTOR_DEDUP_CAPACITY")
	setFloat64(&cfg.Detector.SizeTolerance, "WHALEWATCH_DETECTOR_SIZE_TOLERANCE")
	setFloat64(&cfg.Detector.PriceTolerance, "WHALEWATCH_DETECTOR_PRICE_TOLERANCE")
	setStr(&cfg.Detector.Instrument, "WHALEWATCH_DETECTOR_INSTRUMENT")

	// ── Pipeline ──
	setInt(&cfg.Pipeline.Workers, "WHALEWATCH_PIPELINE_WORKERS")
	setInt(&cfg.Pipeline.QueueSize, "WHALEWATCH_PIPELINE_QUEUE_SIZE")
	setInt64(&cfg.Pipeline.StatusEvery, "WHALEWATCH_PIPELINE_STATUS_EVERY")
	setDuration(&cfg.Pipeline.DrainTimeout, "WHALEWATCH_PIPELINE_DRAIN_TIMEOUT")

	// ── Emitter ──
	setInt(&cfg.Emitter.Lanes, "WHALEWATCH_EMITTER_LANES")
	setDuration(&cfg.Emitter.SinkTimeout, "WHALEWATCH_EMITTER_SINK_TIMEOUT")
	setDuration(&cfg.Emitter.BreakerCooldown, "WHALEWATCH_EMITTER_BREAKER_COOLDOWN")
	setStr(&cfg.Emitter.Channel, "WHALEWATCH_EMITTER_CHANNEL")
	setStr(&cfg.Emitter.Stream, "WHALEWATCH_EMITTER_STREAM")

	// ── Feed ──
	setStr(&cfg.Feed.WSURL, "WHALEWATCH_FEED_WS_URL")
	setStringSlice(&cfg.Feed.Symbols, "WHALEWATCH_FEED_SYMBOLS")
	setStr(&cfg.Feed.QuoteStream, "WHALEWATCH_FEED_QUOTE_STREAM")
	setStr(&cfg.Feed.StartID, "WHALEWATCH_FEED_START_ID")
	setInt(&cfg.Feed.Batch, "WHALEWATCH_FEED_BATCH")
	setDuration(&cfg.Feed.PollInterval, "WHALEWATCH_FEED_POLL_INTERVAL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "WHALEWATCH_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "WHALEWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "WHALEWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "WHALEWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "WHALEWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "WHALEWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "WHALEWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "WHALEWATCH_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "WHALEWATCH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "WHALEWATCH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "WHALEWATCH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "WHALEWATCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "WHALEWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WHALEWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WHALEWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WHALEWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WHALEWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "WHALEWATCH_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "WHALEWATCH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "WHALEWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WHALEWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "WHALEWATCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WHALEWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WHALEWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WHALEWATCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WHALEWATCH_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "WHALEWATCH_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "WHALEWATCH_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "WHALEWATCH_ARCHIVE_CRON")
	setBool(&cfg.Archive.Purge, "WHALEWATCH_ARCHIVE_PURGE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "WHALEWATCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "WHALEWATCH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "WHALEWATCH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "WHALEWATCH_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "WHALEWATCH_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WHALEWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WHALEWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "WHALEWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WHALEWATCH_NOTIFY_EVENTS")
	setInt(&cfg.Notify.PerMinute, "WHALEWATCH_NOTIFY_PER_MINUTE")
	setInt(&cfg.Notify.SymbolLimit, "WHALEWATCH_NOTIFY_SYMBOL_LIMIT")
	setDuration(&cfg.Notify.SymbolWindow, "WHALEWATCH_NOTIFY_SYMBOL_WINDOW")

	// ── Top-level ──
	setStr(&cfg.Mode, "WHALEWATCH_MODE")
	setStr(&cfg.LogLevel, "WHALEWATCH_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
