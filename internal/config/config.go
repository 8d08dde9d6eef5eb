package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	// Secrets (from .env)
	APIKey           string
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   int64
	BotName          string
	CORSAllowOrigin  string

	// Server
	APIPort   int
	LogLevel  string
	LogFormat string

	// Storage
	Store       string
	DatabaseURL string
	DBHost      string
	DBPort      int
	DBName      string
	DBUser      string
	DBPassword  string
	DBMaxConns  int32
	DBMinConns  int32
	SQLitePath  string
	RunHistory  int

	// Market data
	Watchlist         []string
	CandleInterval    string
	CandleLimit       int
	BinanceBaseURL    string
	BinanceWSURL      string
	FearGreedURL      string
	FetchTimeout      time.Duration
	SentimentCacheTTL time.Duration
	PriceCacheTTL     time.Duration
	SignalConcurrency int
	SignalHistory     int

	// Signal levels (ATR multiples)
	StopATRMultiplier   float64
	TargetATRMultiplier float64
	HoldATRMultiplier   float64

	// Scheduler
	Schedule      string
	RunTimeout    time.Duration
	MinConfidence float64

	// Accounts and risk
	InitialCash     float64
	MinTradeUSD     float64
	MaxDailyTrades  int
	DefaultSettings models.TradingSettings
}

// fileConfig is the optional YAML overlay. Env vars win over anything set here.
type fileConfig struct {
	Watchlist []string `yaml:"watchlist"`
	Schedule  string   `yaml:"schedule"`
	Candles   struct {
		Interval string `yaml:"interval"`
		Limit    int    `yaml:"limit"`
	} `yaml:"candles"`
	Signals struct {
		StopATR   float64 `yaml:"stop_atr_multiplier"`
		TargetATR float64 `yaml:"target_atr_multiplier"`
		HoldATR   float64 `yaml:"hold_atr_multiplier"`
		// MinConfidence is a pointer so 0 can switch the floor off.
		MinConfidence *float64 `yaml:"min_confidence"`
	} `yaml:"signals"`
	Accounts struct {
		InitialCash    float64 `yaml:"initial_cash"`
		MinTradeUSD    float64 `yaml:"min_trade_usd"`
		MaxDailyTrades int     `yaml:"max_daily_trades"`
	} `yaml:"accounts"`
	Defaults struct {
		Enabled           *bool    `yaml:"enabled"`
		MinSignalScore    *int     `yaml:"min_signal_score"`
		TradePercentage   *float64 `yaml:"trade_percentage"`
		MaxPositions      *int     `yaml:"max_positions"`
		StopLossPercent   *float64 `yaml:"stop_loss_percent"`
		TakeProfitPercent *float64 `yaml:"take_profit_percent"`
	} `yaml:"defaults"`
}

var defaultWatchlist = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT"}

// Load reads .env, then the YAML file named by CONFIG_FILE (default
// config.yaml, missing is fine), then environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	path := envStr("CONFIG_FILE", "config.yaml")
	file, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return build(file), nil
}

func readFile(path string) (*fileConfig, error) {
	fc := &fileConfig{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, fc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return fc, nil
}

func build(fc *fileConfig) *Config {
	defaults := models.DefaultTradingSettings
	d := fc.Defaults
	if d.Enabled != nil {
		defaults.Enabled = *d.Enabled
	}
	if d.MinSignalScore != nil {
		defaults.MinSignalScore = *d.MinSignalScore
	}
	if d.TradePercentage != nil {
		defaults.TradePercentage = *d.TradePercentage
	}
	if d.MaxPositions != nil {
		defaults.MaxPositions = *d.MaxPositions
	}
	if d.StopLossPercent != nil {
		defaults.StopLossPercent = *d.StopLossPercent
	}
	if d.TakeProfitPercent != nil {
		defaults.TakeProfitPercent = *d.TakeProfitPercent
	}

	minConfidence := 0.6
	if fc.Signals.MinConfidence != nil {
		minConfidence = *fc.Signals.MinConfidence
	}

	watchlist := fc.Watchlist
	if len(watchlist) == 0 {
		watchlist = defaultWatchlist
	}

	cfg := &Config{
		// Secrets
		APIKey:           envStr("API_KEY", ""),
		WebhookURL:       envStr("WEBHOOK_URL", ""),
		TelegramBotToken: envStr("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   envInt64("TELEGRAM_CHAT_ID", 0),
		BotName:          envStr("BOT_NAME", "TrahnAutoTrader"),
		CORSAllowOrigin:  envStr("CORS_ALLOW_ORIGIN", "*"),

		// Server
		APIPort:   envInt("API_PORT", 3001),
		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "console"),

		// Storage
		Store:       strings.ToLower(envStr("STORE", StorePostgres)),
		DatabaseURL: envStr("DATABASE_URL", ""),
		DBHost:      envStr("DB_HOST", "localhost"),
		DBPort:      envInt("DB_PORT", 5432),
		DBName:      envStr("DB_NAME", "trahn_autotrader"),
		DBUser:      envStr("DB_USER", ""),
		DBPassword:  envStr("DB_PASSWORD", ""),
		SQLitePath:  envStr("SQLITE_PATH", ""),
		RunHistory:  envInt("RUN_HISTORY", 100),

		// Market data
		Watchlist:         envList("WATCHLIST", watchlist),
		CandleInterval:    envStr("CANDLE_INTERVAL", orStr(fc.Candles.Interval, "1h")),
		CandleLimit:       envInt("CANDLE_LIMIT", orInt(fc.Candles.Limit, 250)),
		BinanceBaseURL:    envStr("BINANCE_BASE_URL", "https://api.binance.com"),
		BinanceWSURL:      envStr("BINANCE_WS_URL", "wss://stream.binance.com:9443"),
		FearGreedURL:      envStr("FEAR_GREED_URL", "https://api.alternative.me/fng/?limit=1"),
		FetchTimeout:      envDuration("FETCH_TIMEOUT", 15*time.Second),
		SentimentCacheTTL: envDuration("SENTIMENT_CACHE_TTL", 15*time.Minute),
		PriceCacheTTL:     envDuration("PRICE_CACHE_TTL", 2*time.Minute),
		SignalConcurrency: envInt("SIGNAL_CONCURRENCY", 4),
		SignalHistory:     envInt("SIGNAL_HISTORY", 500),

		// Signal levels
		StopATRMultiplier:   envFloat("STOP_ATR_MULTIPLIER", orFloat(fc.Signals.StopATR, 1.5)),
		TargetATRMultiplier: envFloat("TARGET_ATR_MULTIPLIER", orFloat(fc.Signals.TargetATR, 3)),
		HoldATRMultiplier:   envFloat("HOLD_ATR_MULTIPLIER", orFloat(fc.Signals.HoldATR, 1)),

		// Scheduler
		Schedule:      envStr("SCHEDULE_CRON", orStr(fc.Schedule, "@every 5m")),
		RunTimeout:    envDuration("RUN_TIMEOUT", 4*time.Minute),
		MinConfidence: envFloat("MIN_CONFIDENCE", minConfidence),

		// Accounts and risk
		InitialCash:    envFloat("INITIAL_CASH", orFloat(fc.Accounts.InitialCash, 10000)),
		MinTradeUSD:    envFloat("MIN_TRADE_USD", orFloat(fc.Accounts.MinTradeUSD, 10)),
		MaxDailyTrades: envInt("MAX_DAILY_TRADES", fc.Accounts.MaxDailyTrades),
		DefaultSettings: models.TradingSettings{
			Enabled:           envBool("DEFAULT_AUTO_TRADE_ENABLED", defaults.Enabled),
			MinSignalScore:    envInt("DEFAULT_MIN_SIGNAL_SCORE", defaults.MinSignalScore),
			TradePercentage:   envFloat("DEFAULT_TRADE_PERCENTAGE", defaults.TradePercentage),
			MaxPositions:      envInt("DEFAULT_MAX_POSITIONS", defaults.MaxPositions),
			StopLossPercent:   envFloat("DEFAULT_STOP_LOSS_PERCENT", defaults.StopLossPercent),
			TakeProfitPercent: envFloat("DEFAULT_TAKE_PROFIT_PERCENT", defaults.TakeProfitPercent),
		},
	}
	return cfg
}

func (c *Config) Validate() error {
	var errs []string

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" && c.DBUser == "" {
			errs = append(errs, "DB_USER or DATABASE_URL is required for STORE=postgres")
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Sprintf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store))
	}
	if len(c.Watchlist) == 0 {
		errs = append(errs, "WATCHLIST must name at least one symbol")
	}
	if c.CandleLimit < 200 {
		errs = append(errs, "CANDLE_LIMIT must be at least 200")
	}
	if c.Schedule == "" {
		errs = append(errs, "SCHEDULE_CRON is required")
	}
	if c.InitialCash <= 0 {
		errs = append(errs, "INITIAL_CASH must be positive")
	}
	if c.MinTradeUSD < 0 {
		errs = append(errs, "MIN_TRADE_USD must not be negative")
	}
	if c.StopATRMultiplier <= 0 || c.TargetATRMultiplier <= 0 || c.HoldATRMultiplier <= 0 {
		errs = append(errs, "ATR multipliers must be positive")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, "MIN_CONFIDENCE must be within [0,1]")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, "API_PORT must be a valid port")
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, "TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if err := c.DefaultSettings.Validate(); err != nil {
		errs = append(errs, "DEFAULT_*: "+err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Warnings lists settings that are legal but probably unintended.
func (c *Config) Warnings() []string {
	var w []string
	if c.APIKey == "" {
		w = append(w, "API_KEY not set, REST API has no authentication")
	}
	if c.DefaultSettings.StopLossPercent == 0 && c.DefaultSettings.TakeProfitPercent == 0 {
		w = append(w, "default stop-loss and take-profit are both 0, no exit rules active for new users")
	}
	if c.Store == StoreMemory {
		w = append(w, "STORE=memory, balances and trades are lost on restart")
	}
	return w
}

// Print logs a redacted summary.
func (c *Config) Print(log *zap.Logger) {
	log.Info("configuration",
		zap.String("store", c.Store),
		zap.String("db", boolLabel(c.Store == StorePostgres, fmt.Sprintf("%s:%d/%s", c.DBHost, c.DBPort, c.DBName), "n/a")),
		zap.Strings("watchlist", c.Watchlist),
		zap.String("candles", fmt.Sprintf("%d x %s", c.CandleLimit, c.CandleInterval)),
		zap.String("schedule", c.Schedule),
		zap.Float64("min_confidence", c.MinConfidence),
		zap.Float64("initial_cash", c.InitialCash),
		zap.Float64("min_trade_usd", c.MinTradeUSD),
		zap.Int("max_daily_trades", c.MaxDailyTrades),
		zap.String("atr_multipliers", fmt.Sprintf("stop %.2f / target %.2f / hold %.2f",
			c.StopATRMultiplier, c.TargetATRMultiplier, c.HoldATRMultiplier)),
		zap.String("api_key", boolLabel(c.APIKey != "", "configured", "not set")),
		zap.String("webhook", boolLabel(c.WebhookURL != "", "configured", "not set")),
		zap.String("telegram", boolLabel(c.TelegramBotToken != "", "configured", "not set")),
		zap.String("recorder", boolLabel(c.SQLitePath != "", c.SQLitePath, "in-memory")),
	)
}

func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated symbol list, upper-casing entries.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orStr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func orFloat(v, fallback float64) float64 {
	if v != 0 {
		return v
	}
	return fallback
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
