package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AVALENS_* environment variable overrides, and
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

// applyEnvOverrides reads well-known AVALENS_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setInt64(&cfg.Chain.ID, "AVALENS_CHAIN_ID")
	setStr(&cfg.Chain.RPCURL, "AVALENS_CHAIN_RPC_URL")
	setStr(&cfg.Chain.NativeSymbol, "AVALENS_CHAIN_NATIVE_SYMBOL")

	// ── Zerion ──
	setStr(&cfg.Zerion.BaseURL, "AVALENS_ZERION_BASE_URL")
	setStr(&cfg.Zerion.APIKey, "AVALENS_ZERION_API_KEY")

	// ── CoinGecko ──
	setStr(&cfg.CoinGecko.BaseURL, "AVALENS_COINGECKO_BASE_URL")
	setStr(&cfg.CoinGecko.APIKey, "AVALENS_COINGECKO_API_KEY")
	setInt(&cfg.CoinGecko.BatchSize, "AVALENS_COINGECKO_BATCH_SIZE")

	// ── DefiLlama ──
	setStr(&cfg.DefiLlama.BaseURL, "AVALENS_DEFILLAMA_BASE_URL")

	// ── Anthropic ──
	setStr(&cfg.Anthropic.APIKey, "AVALENS_ANTHROPIC_API_KEY")
	setStr(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY") // conventional alias
	setStr(&cfg.Anthropic.Model, "AVALENS_ANTHROPIC_MODEL")
	setInt64(&cfg.Anthropic.MaxTokens, "AVALENS_ANTHROPIC_MAX_TOKENS")
	setFloat64(&cfg.Anthropic.Temperature, "AVALENS_ANTHROPIC_TEMPERATURE")

	// ── Insights ──
	setStr(&cfg.Insights.ValidationMode, "AVALENS_INSIGHTS_VALIDATION_MODE")
	setInt(&cfg.Insights.ExpiryDays, "AVALENS_INSIGHTS_EXPIRY_DAYS")
	setInt(&cfg.Insights.RateLimit, "AVALENS_INSIGHTS_RATE_LIMIT")
	setInt(&cfg.Insights.RateWindowSec, "AVALENS_INSIGHTS_RATE_WINDOW_SEC")
	setInt(&cfg.Insights.BatchDelayMs, "AVALENS_INSIGHTS_BATCH_DELAY_MS")

	// ── Retry / Cache ──
	setInt(&cfg.Retry.MaxRetries, "AVALENS_RETRY_MAX_RETRIES")
	setInt(&cfg.Retry.InitialDelayMs, "AVALENS_RETRY_INITIAL_DELAY_MS")
	setInt(&cfg.Retry.MaxDelayMs, "AVALENS_RETRY_MAX_DELAY_MS")
	setFloat64(&cfg.Retry.Multiplier, "AVALENS_RETRY_MULTIPLIER")
	setInt(&cfg.Cache.PortfolioTTLSec, "AVALENS_CACHE_PORTFOLIO_TTL_SEC")
	setInt(&cfg.Cache.PriceTTLSec, "AVALENS_CACHE_PRICE_TTL_SEC")
	setInt(&cfg.Cache.ProtocolTTLSec, "AVALENS_CACHE_PROTOCOL_TTL_SEC")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AVALENS_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AVALENS_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AVALENS_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AVALENS_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AVALENS_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AVALENS_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AVALENS_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AVALENS_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AVALENS_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AVALENS_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AVALENS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AVALENS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AVALENS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AVALENS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AVALENS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AVALENS_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "AVALENS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AVALENS_S3_REGION")
	setStr(&cfg.S3.Bucket, "AVALENS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AVALENS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AVALENS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AVALENS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AVALENS_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AVALENS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AVALENS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhook, "AVALENS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AVALENS_NOTIFY_EVENTS")

	// ── Server ──
	setInt(&cfg.Server.Port, "AVALENS_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "AVALENS_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "AVALENS_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "AVALENS_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateWindowSec, "AVALENS_SERVER_RATE_WINDOW_SEC")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "AVALENS_LOG_LEVEL")
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
