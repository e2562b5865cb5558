// Package config loads application configuration from environment
// variables. Strategy and risk numbers can be overridden per process;
// anything unset falls back to a conservative default.
package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// EXMO credentials (required only for live trading)
	ExmoAPIKey    string
	ExmoAPISecret string
	ExmoBaseURL   string

	// Market
	Pair         string
	TimeframeSec int

	// Strategy
	Fast      int
	Slow      int
	MinGapBps float64

	// Account and costs
	StartCash float64
	FeeBps    float64
	SlipBps   float64
	SpreadBps float64 // paper fills only

	// Sizing
	SizerPolicy string // fixed_quote | percent_equity | risk_based
	QuoteAmount float64
	EquityPct   float64
	RiskPct     float64

	// Guard
	MaxDailyLossBps float64
	CooldownBars    int

	// Exits
	ATRPeriod     int
	ATRMult       float64
	TakeProfitBps float64

	// Live order handling
	RepriceBps      float64
	RepriceAttempts int
	FillWaitSec     int
	DustCostCeiling float64

	// Pair settings overrides; zero means "use what the exchange reports"
	QtyStep     float64
	PriceTick   float64
	MinNotional float64

	// Notifications (empty disables a channel)
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string

	// Infrastructure
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	MetricsAddr   string
	LogLevel      string
	HeartbeatSec  int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ExmoAPIKey:    getEnv("EXMO_API_KEY", ""),
		ExmoAPISecret: getEnv("EXMO_API_SECRET", ""),
		ExmoBaseURL:   getEnv("EXMO_BASE_URL", ""),

		Pair:         getEnv("PAIR", "DOGE_EUR"),
		TimeframeSec: getEnvInt("TIMEFRAME_SEC", 60),

		Fast:      getEnvInt("FAST", 12),
		Slow:      getEnvInt("SLOW", 26),
		MinGapBps: getEnvFloat("MIN_GAP_BPS", 5),

		StartCash: getEnvFloat("START_CASH", 1000),
		FeeBps:    getEnvFloat("FEE_BPS", 30),
		SlipBps:   getEnvFloat("SLIP_BPS", 10),
		SpreadBps: getEnvFloat("SPREAD_BPS", 5),

		SizerPolicy: getEnv("SIZER_POLICY", "fixed_quote"),
		QuoteAmount: getEnvFloat("QUOTE_AMOUNT", 100),
		EquityPct:   getEnvFloat("EQUITY_PCT", 25),
		RiskPct:     getEnvFloat("RISK_PCT", 1),

		MaxDailyLossBps: getEnvFloat("MAX_DAILY_LOSS_BPS", 300),
		CooldownBars:    getEnvInt("COOLDOWN_BARS", 3),

		ATRPeriod:     getEnvInt("ATR_PERIOD", 14),
		ATRMult:       getEnvFloat("ATR_MULT", 0),
		TakeProfitBps: getEnvFloat("TAKE_PROFIT_BPS", 0),

		RepriceBps:      getEnvFloat("REPRICE_BPS", 10),
		RepriceAttempts: getEnvInt("REPRICE_ATTEMPTS", 2),
		FillWaitSec:     getEnvInt("FILL_WAIT_SEC", 20),
		DustCostCeiling: getEnvFloat("DUST_COST_CEILING", 0.05),

		QtyStep:     getEnvFloat("QTY_STEP", 0),
		PriceTick:   getEnvFloat("PRICE_TICK", 0),
		MinNotional: getEnvFloat("MIN_NOTIONAL", 0),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		SQLitePath:    getEnv("SQLITE_PATH", "data/trader.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		HeartbeatSec:  getEnvInt("HEARTBEAT_SEC", 30),
	}
}

// RequireLiveCredentials exits the process when live trading is requested
// without API credentials configured.
func (c *Config) RequireLiveCredentials() {
	if c.ExmoAPIKey == "" || c.ExmoAPISecret == "" {
		log.Fatal("[config] live trading requires EXMO_API_KEY and EXMO_API_SECRET")
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}
