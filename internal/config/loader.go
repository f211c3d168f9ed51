package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known POLYBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.SafeAddress, "POLYBOT_WALLET_SAFE_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYBOT_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYBOT_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYBOT_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "POLYBOT_POLYMARKET_SIGNATURE_TYPE")

	// ── Builder ──
	setStr(&cfg.Builder.ApiKey, "POLYBOT_BUILDER_API_KEY")
	setStr(&cfg.Builder.ApiSecret, "POLYBOT_BUILDER_API_SECRET")
	setStr(&cfg.Builder.ApiPassphrase, "POLYBOT_BUILDER_API_PASSPHRASE")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKey, "POLYBOT_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "POLYBOT_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "POLYBOT_KALSHI_BASE_URL")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "POLYBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "POLYBOT_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "POLYBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "POLYBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "POLYBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "POLYBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "POLYBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "POLYBOT_SUPABASE_SSLMODE")
	setStr(&cfg.Supabase.SSLMode, "POLYBOT_SUPABASE_SSL_MODE") // compatibility alias
	setInt(&cfg.Supabase.PoolMaxConns, "POLYBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "POLYBOT_SUPABASE_POOL_MIN_CONNS")
	setStr(&cfg.Supabase.ApiURL, "POLYBOT_SUPABASE_API_URL")
	setStr(&cfg.Supabase.ApiKey, "POLYBOT_SUPABASE_API_KEY")
	setBool(&cfg.Supabase.RunMigrations, "POLYBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYBOT_REDIS_TLS_ENABLED")

	// ── Strategy ──
	setStr(&cfg.Strategy.Name, "POLYBOT_STRATEGY_NAME")
	setBool(&cfg.Strategy.AutoExecute, "POLYBOT_STRATEGY_AUTO_EXECUTE")
	setStr(&cfg.Strategy.Coin, "POLYBOT_STRATEGY_COIN")
	setFloat64(&cfg.Strategy.Size, "POLYBOT_STRATEGY_SIZE")
	setInt(&cfg.Strategy.PriceScale, "POLYBOT_STRATEGY_PRICE_SCALE")
	setInt(&cfg.Strategy.SizeScale, "POLYBOT_STRATEGY_SIZE_SCALE")
	setInt(&cfg.Strategy.MaxPositions, "POLYBOT_STRATEGY_MAX_POSITIONS")
	setFloat64(&cfg.Strategy.TakeProfit, "POLYBOT_STRATEGY_TAKE_PROFIT")
	setFloat64(&cfg.Strategy.StopLoss, "POLYBOT_STRATEGY_STOP_LOSS")
	setBool(&cfg.Strategy.LiquidityProvider.Enabled, "POLYBOT_STRATEGY_LIQUIDITY_PROVIDER_ENABLED")
	setBool(&cfg.Strategy.CrossPlatformArb.Enabled, "POLYBOT_STRATEGY_CROSS_PLATFORM_ARB_ENABLED")

	// ── Arbitrage / risk gate ──
	setFloat64(&cfg.Arbitrage.MaxTradeAmount, "POLYBOT_ARBITRAGE_MAX_TRADE_AMOUNT")
	setFloat64(&cfg.Arbitrage.MaxSlippageBps, "POLYBOT_ARBITRAGE_MAX_SLIPPAGE_BPS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYBOT_MODE")
	setStr(&cfg.LogLevel, "POLYBOT_LOG_LEVEL")
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
