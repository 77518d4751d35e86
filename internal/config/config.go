// Package config defines the top-level configuration for avalens and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by AVALENS_* environment
// variables.
type Config struct {
	Chain     ChainConfig     `toml:"chain"`
	Zerion    ZerionConfig    `toml:"zerion"`
	CoinGecko CoinGeckoConfig `toml:"coingecko"`
	DefiLlama DefiLlamaConfig `toml:"defillama"`
	Anthropic AnthropicConfig `toml:"anthropic"`
	Insights  InsightsConfig  `toml:"insights"`
	Retry     RetryConfig     `toml:"retry"`
	Cache     CacheConfig     `toml:"cache"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Server    ServerConfig    `toml:"server"`
	LogLevel  string          `toml:"log_level"`
}

// ChainConfig pins the single chain the service operates on.
type ChainConfig struct {
	ID           int64  `toml:"id"`
	RPCURL       string `toml:"rpc_url"`
	NativeSymbol string `toml:"native_symbol"`
}

// ZerionConfig holds position-source parameters.
type ZerionConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// CoinGeckoConfig holds price-source parameters.
type CoinGeckoConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	BatchSize int    `toml:"batch_size"`
}

// DefiLlamaConfig holds protocol-source parameters.
type DefiLlamaConfig struct {
	BaseURL string `toml:"base_url"`
}

// AnthropicConfig holds generative-text service parameters.
type AnthropicConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int64   `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
}

// InsightsConfig tunes the insight generation pipeline.
type InsightsConfig struct {
	// ValidationMode selects what happens when structural validation of a
	// generated insight reports errors: "warn" logs and completes anyway
	// (the historical behavior), "strict" fails the generation. The fail-open
	// default is a deliberate availability-over-quality tradeoff.
	ValidationMode string `toml:"validation_mode"`

	// ExpiryDays is how long a completed insight stays fresh.
	ExpiryDays int `toml:"expiry_days"`

	// RateLimit and RateWindowSec bound generations per wallet.
	RateLimit     int `toml:"rate_limit"`
	RateWindowSec int `toml:"rate_window_sec"`

	// BatchDelayMs is the pause between consecutive generations in a batch
	// request, to stay under provider rate limits.
	BatchDelayMs int `toml:"batch_delay_ms"`
}

// RetryConfig tunes the resilient HTTP client shared by all providers.
type RetryConfig struct {
	MaxRetries     int     `toml:"max_retries"`
	InitialDelayMs int     `toml:"initial_delay_ms"`
	MaxDelayMs     int     `toml:"max_delay_ms"`
	Multiplier     float64 `toml:"multiplier"`
}

// CacheConfig holds TTLs for the in-process response cache, in seconds.
type CacheConfig struct {
	PortfolioTTLSec int `toml:"portfolio_ttl_sec"`
	PriceTTLSec     int `toml:"price_ttl_sec"`
	ProtocolTTLSec  int `toml:"protocol_ttl_sec"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters. Redis is only used for
// cross-instance rate limiting of insight generation; when Addr is empty the
// service falls back to allowing every request.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object-storage parameters for snapshot archival. Archival
// is disabled when Bucket is empty.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel parameters.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	DiscordWebhook string   `toml:"discord_webhook"`
	Events         []string `toml:"events"`
}

// ServerConfig holds the HTTP server configuration. RateLimit caps requests
// per client IP per RateWindowSec; zero disables the API-wide limiter.
type ServerConfig struct {
	Port          int      `toml:"port"`
	APIKey        string   `toml:"api_key"`
	CORSOrigins   []string `toml:"cors_origins"`
	RateLimit     int      `toml:"rate_limit"`
	RateWindowSec int      `toml:"rate_window_sec"`
}

// Defaults returns a Config populated with sane defaults. Loaded TOML values
// and env overrides are merged on top.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ID:           43114,
			RPCURL:       "https://api.avax.network/ext/bc/C/rpc",
			NativeSymbol: "AVAX",
		},
		Zerion: ZerionConfig{
			BaseURL: "https://api.zerion.io/v1",
		},
		CoinGecko: CoinGeckoConfig{
			BaseURL:   "https://api.coingecko.com/api/v3",
			BatchSize: 250,
		},
		DefiLlama: DefiLlamaConfig{
			BaseURL: "https://api.llama.fi",
		},
		Anthropic: AnthropicConfig{
			Model:       "claude-3-5-haiku-latest",
			MaxTokens:   2048,
			Temperature: 0.7,
		},
		Insights: InsightsConfig{
			ValidationMode: "warn",
			ExpiryDays:     7,
			RateLimit:      5,
			RateWindowSec:  3600,
			BatchDelayMs:   1000,
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialDelayMs: 1000,
			MaxDelayMs:     10000,
			Multiplier:     2,
		},
		Cache: CacheConfig{
			PortfolioTTLSec: 60,
			PriceTTLSec:     60,
			ProtocolTTLSec:  600,
		},
		Postgres: PostgresConfig{
			Port:         5432,
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Server: ServerConfig{
			Port:          8080,
			RateLimit:     120,
			RateWindowSec: 60,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for fatal inconsistencies. It is called
// once at startup, after Load.
func (c *Config) Validate() error {
	if c.Chain.ID <= 0 {
		return fmt.Errorf("config: chain.id must be positive")
	}
	if strings.TrimSpace(c.Zerion.BaseURL) == "" {
		return fmt.Errorf("config: zerion.base_url is required")
	}
	if strings.TrimSpace(c.CoinGecko.BaseURL) == "" {
		return fmt.Errorf("config: coingecko.base_url is required")
	}
	if c.CoinGecko.BatchSize <= 0 {
		return fmt.Errorf("config: coingecko.batch_size must be positive")
	}
	if strings.TrimSpace(c.DefiLlama.BaseURL) == "" {
		return fmt.Errorf("config: defillama.base_url is required")
	}
	switch c.Insights.ValidationMode {
	case "warn", "strict":
	default:
		return fmt.Errorf("config: insights.validation_mode must be %q or %q, got %q",
			"warn", "strict", c.Insights.ValidationMode)
	}
	if c.Insights.ExpiryDays <= 0 {
		return fmt.Errorf("config: insights.expiry_days must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("config: retry.max_retries must not be negative")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("config: retry.multiplier must be >= 1")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// InitialDelay returns the initial backoff delay as a duration.
func (r RetryConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff ceiling as a duration.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}
