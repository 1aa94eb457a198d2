// Package config defines the top-level configuration of dealscout and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DEALSCOUT_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Cache     CacheConfig     `toml:"cache"`
	S3        S3Config        `toml:"s3"`
	Providers ProvidersConfig `toml:"providers"`
	Search    SearchConfig    `toml:"search"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
	LogFormat string          `toml:"log_format"`
}

// PostgresConfig holds PostgreSQL connection parameters. A disabled
// database keeps every store in process memory.
type PostgresConfig struct {
	Enabled        bool     `toml:"enabled"`
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// CacheConfig selects the cache backend and its TTLs.
type CacheConfig struct {
	Backend     string   `toml:"backend"` // redis | memory
	SearchTTL   duration `toml:"search_ttl"`
	DealTTL     duration `toml:"deal_ttl"`
	BasicTTL    duration `toml:"basic_ttl"`
	AnalysisTTL duration `toml:"analysis_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
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

// ProvidersConfig configures the marketplace adapters and the scraper.
type ProvidersConfig struct {
	BaseURL       string                  `toml:"base_url"`
	APIKey        string                  `toml:"api_key"`
	GlobalTimeout duration                `toml:"global_timeout"`
	ResultLimit   int                     `toml:"result_limit"`
	Markets       map[string]MarketConfig `toml:"markets"`
	Scraper       ScraperConfig           `toml:"scraper"`
}

// MarketConfig enables one marketplace. A zero timeout uses the market's
// default.
type MarketConfig struct {
	Enabled bool     `toml:"enabled"`
	Timeout duration `toml:"timeout"`
}

// ScraperConfig configures the HTML fallback.
type ScraperConfig struct {
	Enabled   bool     `toml:"enabled"`
	Timeout   duration `toml:"timeout"`
	UserAgent string   `toml:"user_agent"`
}

// SearchConfig tunes ad-hoc search.
type SearchConfig struct {
	DefaultLimit int      `toml:"default_limit"`
	MaxResults   int      `toml:"max_results"`
	Realtime     bool     `toml:"realtime"`
	DealTTL      duration `toml:"deal_ttl"`
	Brands       []string `toml:"brands"`
}

// MonitorConfig tunes the background loop.
type MonitorConfig struct {
	Interval          duration `toml:"interval"`
	ExpireBatch       int      `toml:"expire_batch"`
	RefreshAge        duration `toml:"refresh_age"`
	RefreshBatch      int      `toml:"refresh_batch"`
	NotifyDedupWindow duration `toml:"notify_dedup_window"`
	ArchiveRetention  duration `toml:"archive_retention"`
	ArchiveCron       string   `toml:"archive_cron"`
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
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Timeout           duration `toml:"timeout"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	markets := make(map[string]MarketConfig, len(domain.MarketTypes))
	for _, m := range domain.MarketTypes {
		markets[string(m)] = MarketConfig{Enabled: true}
	}
	return Config{
		Postgres: PostgresConfig{
			Enabled:        true,
			Host:           "localhost",
			Port:           5432,
			Database:       "dealscout",
			User:           "postgres",
			SSLMode:        "disable",
			PoolMaxConns:   10,
			PoolMinConns:   2,
			ConnectTimeout: duration{10 * time.Second},
			RunMigrations:  true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "dealscout:",
		},
		Cache: CacheConfig{
			Backend:     "redis",
			SearchTTL:   duration{5 * time.Minute},
			DealTTL:     duration{time.Hour},
			BasicTTL:    duration{2 * time.Hour},
			AnalysisTTL: duration{time.Hour},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "dealscout-archive",
			ForcePathStyle: true,
		},
		Providers: ProvidersConfig{
			GlobalTimeout: duration{15 * time.Second},
			ResultLimit:   20,
			Markets:       markets,
			Scraper: ScraperConfig{
				Enabled: true,
				Timeout: duration{10 * time.Second},
			},
		},
		Search: SearchConfig{
			DefaultLimit: 20,
			MaxResults:   15,
			Realtime:     true,
			DealTTL:      duration{7 * 24 * time.Hour},
		},
		Monitor: MonitorConfig{
			Interval:          duration{5 * time.Minute},
			ExpireBatch:       500,
			RefreshAge:        duration{6 * time.Hour},
			RefreshBatch:      50,
			NotifyDedupWindow: duration{24 * time.Hour},
			ArchiveRetention:  duration{30 * 24 * time.Hour},
			ArchiveCron:       "0 3 * * *",
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events:  []string{domain.EventGoalMatch, domain.EventPriceDrop, domain.EventDealExpired},
			Timeout: duration{10 * time.Second},
		},
		Mode:      "full",
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ServesHTTP reports whether the mode runs the API server.
func (c *Config) ServesHTTP() bool {
	m := strings.ToLower(c.Mode)
	return m == "server" || m == "full"
}

// RunsMonitor reports whether the mode runs the background monitor.
func (c *Config) RunsMonitor() bool {
	m := strings.ToLower(c.Mode)
	return m == "monitor" || m == "full"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if f := strings.ToLower(c.LogFormat); f != "json" && f != "text" {
		errs = append(errs, fmt.Sprintf("unknown log_format %q (valid: json, text)", c.LogFormat))
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
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Cache / Redis
	switch strings.ToLower(c.Cache.Backend) {
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: redis, memory)", c.Cache.Backend))
	}
	for name, d := range map[string]duration{
		"search_ttl":   c.Cache.SearchTTL,
		"deal_ttl":     c.Cache.DealTTL,
		"basic_ttl":    c.Cache.BasicTTL,
		"analysis_ttl": c.Cache.AnalysisTTL,
	} {
		if d.Duration <= 0 {
			errs = append(errs, "cache: "+name+" must be > 0")
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

	// Providers
	enabled := 0
	for name, m := range c.Providers.Markets {
		if !domain.MarketType(name).Valid() {
			errs = append(errs, fmt.Sprintf("providers: unknown market %q", name))
			continue
		}
		if m.Enabled {
			enabled++
		}
		if m.Timeout.Duration < 0 {
			errs = append(errs, fmt.Sprintf("providers: markets.%s.timeout must not be negative", name))
		}
	}
	if enabled > 0 && c.Providers.BaseURL == "" {
		errs = append(errs, "providers: base_url must not be empty when a market is enabled")
	}
	if c.Providers.GlobalTimeout.Duration <= 0 {
		errs = append(errs, "providers: global_timeout must be > 0")
	}

	// Search
	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > 100 {
		errs = append(errs, fmt.Sprintf("search: default_limit must be 1-100, got %d", c.Search.DefaultLimit))
	}
	if c.Search.MaxResults < 1 {
		errs = append(errs, "search: max_results must be >= 1")
	}
	if c.Search.DealTTL.Duration <= 0 {
		errs = append(errs, "search: deal_ttl must be > 0")
	}

	// Monitor
	if c.RunsMonitor() {
		if c.Monitor.Interval.Duration < time.Second {
			errs = append(errs, "monitor: interval must be >= 1s")
		}
		if c.S3.Enabled && c.Monitor.ArchiveRetention.Duration <= 0 {
			errs = append(errs, "monitor: archive_retention must be > 0 when s3 is enabled")
		}
	}

	// Server
	if c.ServesHTTP() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
