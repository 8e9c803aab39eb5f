// Package config defines the whalewatch configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/tracker"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WHALEWATCH_* environment variables.
type Config struct {
	Detector DetectorConfig `toml:"detector"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Emitter  EmitterConfig  `toml:"emitter"`
	Feed     FeedConfig     `toml:"feed"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DetectorConfig holds the detection thresholds.
type DetectorConfig struct {
	MinOrderValue      float64  `toml:"min_order_value"`
	MinTradeValue      float64  `toml:"min_trade_value"`
	SignificantMovePct float64  `toml:"significant_move_pct"`
	DedupWindow        duration `toml:"dedup_window"`
	DedupCapacity      int      `toml:"dedup_capacity"`
	SizeTolerance      float64  `toml:"size_tolerance"`
	PriceTolerance     float64  `toml:"price_tolerance"`
	Instrument         string   `toml:"instrument"`
}

// Tracker converts the section to the detection core's config.
func (d DetectorConfig) Tracker() tracker.Config {
	return tracker.Config{
		MinOrderValue:      d.MinOrderValue,
		MinTradeValue:      d.MinTradeValue,
		SignificantMovePct: d.SignificantMovePct,
		DedupWindow:        d.DedupWindow.Duration,
		DedupCapacity:      d.DedupCapacity,
		SizeTolerance:      d.SizeTolerance,
		PriceTolerance:     d.PriceTolerance,
		Instrument:         domain.Instrument(d.Instrument),
	}
}

// PipelineConfig sizes the worker pool.
type PipelineConfig struct {
	Workers      int      `toml:"workers"`
	QueueSize    int      `toml:"queue_size"`
	StatusEvery  int64    `toml:"status_every"`
	DrainTimeout duration `toml:"drain_timeout"`
}

// EmitterConfig controls detection delivery.
type EmitterConfig struct {
	Lanes           int      `toml:"lanes"`
	SinkTimeout     duration `toml:"sink_timeout"`
	BreakerCooldown duration `toml:"breaker_cooldown"`
	Channel         string   `toml:"channel"`
	Stream          string   `toml:"stream"`
}

// FeedConfig selects the quote sources.
type FeedConfig struct {
	WSURL        string   `toml:"ws_url"`
	Symbols      []string `toml:"symbols"`
	QuoteStream  string   `toml:"quote_stream"`
	StartID      string   `toml:"start_id"`
	Batch        int      `toml:"batch"`
	PollInterval duration `toml:"poll_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the cold-storage export.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
	Purge         bool   `toml:"purge"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"` // requests per client per minute
}

// NotifyConfig holds alert channel credentials and throttles.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	PerMinute         int      `toml:"per_minute"`   // global send pacing
	SymbolLimit       int      `toml:"symbol_limit"` // alerts per symbol per window
	SymbolWindow      duration `toml:"symbol_window"`
}

// Defaults returns a Config populated with sensible defaults. Values from a
// TOML file are decoded on top of these.
func Defaults() Config {
	det := tracker.DefaultConfig()
	return Config{
		Detector: DetectorConfig{
			MinOrderValue:      det.MinOrderValue,
			MinTradeValue:      det.MinTradeValue,
			SignificantMovePct: det.SignificantMovePct,
			DedupWindow:        duration{det.DedupWindow},
			DedupCapacity:      det.DedupCapacity,
			SizeTolerance:      det.SizeTolerance,
			PriceTolerance:     det.PriceTolerance,
			Instrument:         string(det.Instrument),
		},
		Pipeline: PipelineConfig{
			Workers:      8,
			QueueSize:    1024,
			StatusEvery:  100,
			DrainTimeout: duration{30 * time.Second},
		},
		Emitter: EmitterConfig{
			Lanes:           8,
			SinkTimeout:     duration{10 * time.Second},
			BreakerCooldown: duration{60 * time.Second},
			Channel:         "ch:whale",
			Stream:          "whale_events",
		},
		Feed: FeedConfig{
			WSURL:        "ws://localhost:8765/stream",
			QuoteStream:  "quotes",
			StartID:      "$",
			Batch:        500,
			PollInterval: duration{250 * time.Millisecond},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "whalewatch",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "whalewatch-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
			Cron:          "0 3 * * *",
		},
		Notify: NotifyConfig{
			PerMinute:    20,
			SymbolLimit:  3,
			SymbolWindow: duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Mode:     "stream",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"stream": true,
	"bus":    true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validInstruments = map[string]bool{
	string(domain.InstrumentEquity): true,
	string(domain.InstrumentOption): true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: stream, bus, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Detector
	d := c.Detector
	if d.MinOrderValue <= 0 {
		errs = append(errs, "detector: min_order_value must be > 0")
	}
	if d.MinTradeValue <= 0 {
		errs = append(errs, "detector: min_trade_value must be > 0")
	}
	if d.SignificantMovePct <= 0 {
		errs = append(errs, "detector: significant_move_pct must be > 0")
	}
	if d.DedupWindow.Duration <= 0 {
		errs = append(errs, "detector: dedup_window must be > 0")
	}
	if d.DedupCapacity < 1 || d.DedupCapacity > 10 {
		errs = append(errs, fmt.Sprintf("detector: dedup_capacity must be 1-10, got %d", d.DedupCapacity))
	}
	if d.SizeTolerance <= 0 || d.SizeTolerance >= 1 {
		errs = append(errs, "detector: size_tolerance must be in (0, 1)")
	}
	if d.PriceTolerance <= 0 || d.PriceTolerance >= 1 {
		errs = append(errs, "detector: price_tolerance must be in (0, 1)")
	}
	if !validInstruments[d.Instrument] {
		errs = append(errs, fmt.Sprintf("detector: unknown instrument %q (valid: equity, option)", d.Instrument))
	}

	// Pipeline
	if c.Pipeline.Workers < 1 {
		errs = append(errs, "pipeline: workers must be >= 1")
	}
	if c.Pipeline.QueueSize < 1 {
		errs = append(errs, "pipeline: queue_size must be >= 1")
	}

	// Emitter
	if c.Emitter.Lanes < 1 {
		errs = append(errs, "emitter: lanes must be >= 1")
	}
	if c.Emitter.SinkTimeout.Duration <= 0 {
		errs = append(errs, "emitter: sink_timeout must be > 0")
	}

	// Feeds
	if mode == "stream" || mode == "full" {
		if c.Feed.WSURL == "" {
			errs = append(errs, "feed: ws_url must not be empty for mode "+mode)
		}
		if len(c.Feed.Symbols) == 0 {
			errs = append(errs, "feed: symbols must not be empty for mode "+mode)
		}
	}
	if mode == "bus" || mode == "full" {
		if !c.Redis.Enabled {
			errs = append(errs, "redis: must be enabled for mode "+mode)
		}
		if c.Feed.QuoteStream == "" {
			errs = append(errs, "feed: quote_stream must not be empty for mode "+mode)
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if !c.Postgres.Enabled || !c.S3.Enabled {
			errs = append(errs, "archive: requires postgres and s3 to be enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if len(strings.Fields(c.Archive.Cron)) != 5 {
			errs = append(errs, fmt.Sprintf("archive: cron must have 5 fields, got %q", c.Archive.Cron))
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
