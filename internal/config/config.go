package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// RiskConfig mirrors riskguard.Config's operator-tunable thresholds so the
// daemon can build a riskguard.CircuitBreaker straight from the loaded
// environment.
type RiskConfig struct {
	MaxDailyLossPercent decimal.Decimal
	MaxTotalLossPercent decimal.Decimal
	CooldownMinutes     int
	AutoResetAtMidnight bool
}

// Config holds every environment-driven setting the daemon needs at
// startup, per spec.md §6's "Environment" table.
type Config struct {
	// Daemon
	LogLevel string
	Debug    bool

	// Chain / RPC
	BaseRPCURL string
	ChainID    int64

	// DEX aggregator (0x-style)
	ZeroXAPIKey string
	ZeroXAPIURL string
	SlippageBp  int

	// Vault
	WalletPassword string

	// Price oracle
	MinPriceConfidence float64
	PreferChainlink    bool

	// Risk management
	Risk RiskConfig

	// Gas
	GasReserveWei decimal.Decimal

	// Per-call timeouts (spec.md §5); zero disables the override and the
	// tradingbot package default applies.
	PriceFetchTimeout time.Duration
	QuoteTimeout      time.Duration
	ReceiptTimeout    time.Duration

	// Persistence
	StatePath string
	LedgerDSN string

	// Notifications
	TelegramBotToken string
	TelegramChatID   int64

	// Metrics
	MetricsAddr string
}

// Load builds a Config from the environment, applying the defaults the
// daemon ships with. A missing WALLET_PASSWORD is only an error once a bot
// actually needs to sign, so it is not validated here — see Validate,
// wired to cmd/gridbot's validate-setup command.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Debug:    getEnvBool("DEBUG", false),

		BaseRPCURL: os.Getenv("BASE_RPC_URL"),
		ChainID:    int64(getEnvInt("CHAIN_ID", 8453)), // Base mainnet

		ZeroXAPIKey: os.Getenv("ZEROX_API_KEY"),
		ZeroXAPIURL: getEnv("ZEROX_API_URL", "https://api.0x.org"),
		SlippageBp:  getEnvInt("SLIPPAGE_BP", 100),

		WalletPassword: os.Getenv("WALLET_PASSWORD"),

		MinPriceConfidence: getEnvFloat("MIN_PRICE_CONFIDENCE", 0.80),
		PreferChainlink:    getEnvBool("PREFER_CHAINLINK", true),

		Risk: RiskConfig{
			MaxDailyLossPercent: getEnvDecimal("RISK_MAX_DAILY_LOSS_PERCENT", decimal.NewFromInt(10)),
			MaxTotalLossPercent: getEnvDecimal("RISK_MAX_TOTAL_LOSS_PERCENT", decimal.NewFromInt(30)),
			CooldownMinutes:     getEnvInt("RISK_COOLDOWN_MINUTES", 60),
			AutoResetAtMidnight: getEnvBool("RISK_AUTO_RESET_AT_MIDNIGHT", true),
		},

		GasReserveWei: getEnvDecimal("GAS_RESERVE_WEI", decimal.NewFromInt(5000000000000000)), // 0.005 ETH

		PriceFetchTimeout: getEnvDuration("PRICE_FETCH_TIMEOUT", 10*time.Second),
		QuoteTimeout:      getEnvDuration("QUOTE_TIMEOUT", 15*time.Second),
		ReceiptTimeout:    getEnvDuration("RECEIPT_TIMEOUT", 120*time.Second),

		StatePath: getEnv("STATE_PATH", "data/state.json"),
		LedgerDSN: os.Getenv("LEDGER_DSN"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

// Validate checks the settings required for the daemon to actually trade,
// per spec.md §6's operator surface `validate-setup` command.
func (c *Config) Validate() error {
	if c.BaseRPCURL == "" {
		return fmt.Errorf("BASE_RPC_URL is required")
	}
	if c.ZeroXAPIKey == "" {
		return fmt.Errorf("ZEROX_API_KEY is required")
	}
	if c.WalletPassword == "" {
		return fmt.Errorf("WALLET_PASSWORD is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
