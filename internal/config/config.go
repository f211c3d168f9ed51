// Package config defines the top-level configuration for the strategy
// runner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYBOT_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Builder    BuilderConfig    `toml:"builder"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Arbitrage  ArbitrageConfig  `toml:"arbitrage"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	SafeAddress      string `toml:"safe_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	GammaHost     string `toml:"gamma_host"`
	WsHost        string `toml:"ws_host"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
}

// BuilderConfig holds Polymarket builder-program API credentials.
type BuilderConfig struct {
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// KalshiConfig holds Kalshi exchange API credentials.
type KalshiConfig struct {
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	BaseURL           string `toml:"base_url"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	ApiURL        string `toml:"api_url"`
	ApiKey        string `toml:"api_key"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// StrategyConfig holds trading strategy parameters.
type StrategyConfig struct {
	Name         string         `toml:"name"`
	AutoExecute  bool           `toml:"auto_execute"`
	Coin         string         `toml:"coin"`
	Size         float64        `toml:"size"`
	PriceScale   int            `toml:"price_scale"`
	SizeScale    int            `toml:"size_scale"`
	MaxPositions int            `toml:"max_positions"`
	TakeProfit   float64        `toml:"take_profit"`
	StopLoss     float64        `toml:"stop_loss"`
	Params       map[string]any `toml:"params"`
	// Active is the list of strategy names to run concurrently under one Executor.
	Active []string `toml:"active"`

	LiquidityProvider LiquidityProviderConfig `toml:"liquidity_provider"`
	CrossPlatformArb  CrossPlatformArbConfig  `toml:"cross_platform_arb"`
}

// LiquidityProviderConfig holds config for the liquidity_provider strategy.
type LiquidityProviderConfig struct {
	Enabled          bool    `toml:"enabled"`
	HalfSpreadBps    int     `toml:"half_spread_bps"`
	RequoteThreshold float64 `toml:"requote_threshold"`
	Size             float64 `toml:"size"`
}

// CrossPlatformArbConfig holds config for the cross_platform_arb strategy.
type CrossPlatformArbConfig struct {
	Enabled    bool              `toml:"enabled"`
	MinEdgeBps int               `toml:"min_edge_bps"`
	SizePerLeg float64           `toml:"size_per_leg"`
	MarketMap  map[string]string `toml:"market_map"`
}

// ArbitrageConfig holds the risk-gate parameters shared by every strategy's
// pre-trade check.
type ArbitrageConfig struct {
	MaxTradeAmount float64 `toml:"max_trade_amount"`
	MaxSlippageBps float64 `toml:"max_slippage_bps"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			WsHost:        "wss://ws-subscriptions-clob.polymarket.com",
			ChainID:       137,
			SignatureType: 2,
		},
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
		},
		Supabase: SupabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
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
			TLSEnabled: false,
		},
		Strategy: StrategyConfig{
			Name:         "mean_reversion",
			AutoExecute:  true,
			Coin:         "ETH",
			Size:         5.0,
			PriceScale:   1_000_000,
			SizeScale:    1_000_000,
			MaxPositions: 1,
			TakeProfit:   0.10,
			StopLoss:     0.05,
			Params:       map[string]any{},
			LiquidityProvider: LiquidityProviderConfig{
				Enabled:          true,
				HalfSpreadBps:    50,
				RequoteThreshold: 0.005,
				Size:             5.0,
			},
			CrossPlatformArb: CrossPlatformArbConfig{
				Enabled:    false,
				MinEdgeBps: 60,
				SizePerLeg: 5.0,
				MarketMap:  map[string]string{},
			},
		},
		Arbitrage: ArbitrageConfig{
			MaxTradeAmount: 10.0,
			MaxSlippageBps: 20.0,
		},
		Notify: NotifyConfig{
			Events: []string{"arb_detected", "order_filled", "position_closed", "error"},
		},
		Mode:     "strategy",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"strategy": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
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

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: strategy)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — at least one credential source must be specified.
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType != 1 && c.Polymarket.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 1 (EOA) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}

	// Builder — all three fields must be set together, or all empty.
	bk := c.Builder.ApiKey != ""
	bs := c.Builder.ApiSecret != ""
	bp := c.Builder.ApiPassphrase != ""
	if bk || bs || bp {
		if !(bk && bs && bp) {
			errs = append(errs, "builder: api_key, api_secret, and api_passphrase must all be set together")
		}
	}

	// Kalshi — only required when a strategy crosses to the Kalshi adapter.
	if c.Strategy.CrossPlatformArb.Enabled {
		if c.Kalshi.ApiKey == "" {
			errs = append(errs, "kalshi: api_key is required when cross_platform_arb is enabled")
		}
		if c.Kalshi.BaseURL == "" {
			errs = append(errs, "kalshi: base_url must not be empty")
		}
	}

	// Supabase
	if strings.TrimSpace(c.Supabase.DSN) == "" {
		if c.Supabase.Host == "" {
			errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
		}
		if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
			errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
		}
		if c.Supabase.Database == "" {
			errs = append(errs, "supabase: database must not be empty")
		}
	}
	if c.Supabase.PoolMaxConns < 1 {
		errs = append(errs, "supabase: pool_max_conns must be >= 1")
	}
	if c.Supabase.PoolMinConns < 0 {
		errs = append(errs, "supabase: pool_min_conns must be >= 0")
	}
	if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
		errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Strategy
	if c.Strategy.Size <= 0 {
		errs = append(errs, "strategy: size must be > 0")
	}
	if c.Strategy.PriceScale <= 0 {
		errs = append(errs, "strategy: price_scale must be > 0")
	}
	if c.Strategy.SizeScale <= 0 {
		errs = append(errs, "strategy: size_scale must be > 0")
	}
	if c.Strategy.MaxPositions < 1 {
		errs = append(errs, "strategy: max_positions must be >= 1")
	}

	// Arbitrage / risk gate
	if c.Arbitrage.MaxTradeAmount <= 0 {
		errs = append(errs, "arbitrage: max_trade_amount must be > 0")
	}
	if c.Arbitrage.MaxSlippageBps <= 0 {
		errs = append(errs, "arbitrage: max_slippage_bps must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
