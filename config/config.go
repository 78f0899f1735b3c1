package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	TradingConfig   TradingConfig   `json:"trading"`
	RiskConfig      RiskConfig      `json:"risk"`
	ExecutionConfig ExecutionConfig `json:"execution"`
	MarketConfig    MarketConfig    `json:"market"`
	AIConfig        AIConfig        `json:"ai"`
	StrategyConfig  StrategyConfig  `json:"strategies"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RedisConfig     RedisConfig     `json:"redis"`
	ServerConfig    ServerConfig    `json:"server"`
	LoggingConfig   LoggingConfig   `json:"logging"`
}

// TradingConfig holds the core paper-trading loop configuration
type TradingConfig struct {
	InitialCapital         float64  `json:"initial_capital"`
	Symbols                []string `json:"symbols"`
	SignalIntervalSeconds  int      `json:"signal_interval_seconds"`  // Seconds between signal cycles
	MonitorIntervalSeconds int      `json:"monitor_interval_seconds"` // Seconds between position monitor ticks
	LotStep                float64  `json:"lot_step"`                 // Minimum size granularity in base units
}

// RiskConfig holds portfolio risk limit configuration
type RiskConfig struct {
	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`       // Max drawdown from peak before halting
	MaxDailyLossPct     float64 `json:"max_daily_loss_pct"`     // Max daily loss % of day-start capital
	MaxDailyTrades      int     `json:"max_daily_trades"`       // Max trades per UTC day
	MaxPositionSizePct  float64 `json:"max_position_size_pct"`  // Risk capital per position as % of capital
	MaxPortfolioRiskPct float64 `json:"max_portfolio_risk_pct"` // Total open risk ceiling as % of capital
}

// ExecutionConfig holds simulated fill configuration
type ExecutionConfig struct {
	FeeRate      float64 `json:"fee_rate"`       // Fee per side as fraction of notional (0.001 = 0.1%)
	SlippagePct  float64 `json:"slippage_pct"`   // Adverse slippage as fraction of price
	MaxSpreadPct float64 `json:"max_spread_pct"` // Reject fills when bid/ask spread exceeds this fraction
}

// MarketConfig holds market data source configuration
type MarketConfig struct {
	WebsocketURL     string `json:"websocket_url"`
	RestURL          string `json:"rest_url"`
	KlineInterval    string `json:"kline_interval"`
	KlineLimit       int    `json:"kline_limit"`
	MockMode         bool   `json:"mock_mode"`             // Use simulated prices when no exchange is reachable
	StaleAfterMs     int    `json:"stale_after_ms"`        // Quote freshness limit
	PriceTimeoutSecs int    `json:"price_timeout_seconds"` // Per-fetch timeout for price lookups
}

// AIConfig holds AI signal generator configuration
type AIConfig struct {
	Enabled          bool    `json:"enabled"`
	APIKey           string  `json:"api_key"`
	BaseURL          string  `json:"base_url"`
	Model            string  `json:"model"`
	TimeoutSeconds   int     `json:"timeout_seconds"`
	MinConfidence    float64 `json:"min_confidence"`     // ai_min_confidence: AI signals below this fall through to rules
	MetaCheckEnabled bool    `json:"meta_check_enabled"` // Enable meta AI risk validation (fail-open)
}

// StrategyConfig holds per-strategy settings for the rule-based fallbacks
type StrategyConfig struct {
	Momentum       RuleConfig `json:"momentum"`
	MeanReversion  RuleConfig `json:"mean_reversion"`
	Breakout       RuleConfig `json:"breakout"`
	TrendFollowing RuleConfig `json:"trend_following"`
}

// RuleConfig configures a single rule-based strategy
type RuleConfig struct {
	Enabled       bool    `json:"enabled"`
	MinConfidence float64 `json:"min_confidence"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for hot risk-state snapshots
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	AllowedOrigins  string `json:"allowed_origins"`
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // Human-readable console output instead of JSON
}

// Load reads config.json if present and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.TradingConfig.InitialCapital <= 0 {
		return fmt.Errorf("trading.initial_capital must be positive, got %v", c.TradingConfig.InitialCapital)
	}
	if len(c.TradingConfig.Symbols) == 0 {
		return fmt.Errorf("trading.symbols must not be empty")
	}
	if c.RiskConfig.MaxPositionSizePct <= 0 {
		return fmt.Errorf("risk.max_position_size_pct must be positive, got %v", c.RiskConfig.MaxPositionSizePct)
	}
	if c.ExecutionConfig.FeeRate < 0 || c.ExecutionConfig.SlippagePct < 0 {
		return fmt.Errorf("execution fee_rate and slippage_pct must not be negative")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.TradingConfig.InitialCapital == 0 {
		cfg.TradingConfig.InitialCapital = 10000.0
	}
	if len(cfg.TradingConfig.Symbols) == 0 {
		cfg.TradingConfig.Symbols = []string{"BTCUSDT"}
	}
	if cfg.TradingConfig.SignalIntervalSeconds == 0 {
		cfg.TradingConfig.SignalIntervalSeconds = 30
	}
	if cfg.TradingConfig.MonitorIntervalSeconds == 0 {
		cfg.TradingConfig.MonitorIntervalSeconds = 5
	}
	if cfg.TradingConfig.LotStep == 0 {
		cfg.TradingConfig.LotStep = 0.000001
	}

	if cfg.RiskConfig.MaxDrawdownPct == 0 {
		cfg.RiskConfig.MaxDrawdownPct = 5.0
	}
	if cfg.RiskConfig.MaxDailyLossPct == 0 {
		cfg.RiskConfig.MaxDailyLossPct = 2.0
	}
	if cfg.RiskConfig.MaxDailyTrades == 0 {
		cfg.RiskConfig.MaxDailyTrades = 100
	}
	if cfg.RiskConfig.MaxPositionSizePct == 0 {
		cfg.RiskConfig.MaxPositionSizePct = 1.0
	}
	if cfg.RiskConfig.MaxPortfolioRiskPct == 0 {
		cfg.RiskConfig.MaxPortfolioRiskPct = 20.0
	}

	if cfg.ExecutionConfig.FeeRate == 0 {
		cfg.ExecutionConfig.FeeRate = 0.001
	}
	if cfg.ExecutionConfig.SlippagePct == 0 {
		cfg.ExecutionConfig.SlippagePct = 0.0005
	}
	if cfg.ExecutionConfig.MaxSpreadPct == 0 {
		cfg.ExecutionConfig.MaxSpreadPct = 0.002
	}

	if cfg.MarketConfig.WebsocketURL == "" {
		cfg.MarketConfig.WebsocketURL = "wss://stream.binance.com:9443/ws"
	}
	if cfg.MarketConfig.RestURL == "" {
		cfg.MarketConfig.RestURL = "https://api.binance.com"
	}
	if cfg.MarketConfig.KlineInterval == "" {
		cfg.MarketConfig.KlineInterval = "5m"
	}
	if cfg.MarketConfig.KlineLimit == 0 {
		cfg.MarketConfig.KlineLimit = 200
	}
	if cfg.MarketConfig.StaleAfterMs == 0 {
		cfg.MarketConfig.StaleAfterMs = 1000
	}
	if cfg.MarketConfig.PriceTimeoutSecs == 0 {
		cfg.MarketConfig.PriceTimeoutSecs = 3
	}

	if cfg.AIConfig.BaseURL == "" {
		cfg.AIConfig.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.AIConfig.Model == "" {
		cfg.AIConfig.Model = "deepseek/deepseek-chat"
	}
	if cfg.AIConfig.TimeoutSeconds == 0 {
		cfg.AIConfig.TimeoutSeconds = 30
	}
	if cfg.AIConfig.MinConfidence == 0 {
		cfg.AIConfig.MinConfidence = 0.6
	}

	// Rule-strategy confidence floors, ordered by priority
	if cfg.StrategyConfig.Momentum.MinConfidence == 0 {
		cfg.StrategyConfig.Momentum = RuleConfig{Enabled: true, MinConfidence: 0.60}
	}
	if cfg.StrategyConfig.MeanReversion.MinConfidence == 0 {
		cfg.StrategyConfig.MeanReversion = RuleConfig{Enabled: true, MinConfidence: 0.65}
	}
	if cfg.StrategyConfig.Breakout.MinConfidence == 0 {
		cfg.StrategyConfig.Breakout = RuleConfig{Enabled: true, MinConfidence: 0.70}
	}
	if cfg.StrategyConfig.TrendFollowing.MinConfidence == 0 {
		cfg.StrategyConfig.TrendFollowing = RuleConfig{Enabled: true, MinConfidence: 0.75}
	}

	if cfg.DatabaseConfig.Host == "" {
		cfg.DatabaseConfig.Host = "localhost"
	}
	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}

	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}

	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.ShutdownTimeout == 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.TradingConfig.InitialCapital = getEnvFloatOrDefault("TRADING_INITIAL_CAPITAL", cfg.TradingConfig.InitialCapital)
	if symbols := os.Getenv("TRADING_SYMBOLS"); symbols != "" {
		cfg.TradingConfig.Symbols = splitAndTrim(symbols)
	}
	cfg.TradingConfig.SignalIntervalSeconds = getEnvIntOrDefault("TRADING_SIGNAL_INTERVAL", cfg.TradingConfig.SignalIntervalSeconds)
	cfg.TradingConfig.MonitorIntervalSeconds = getEnvIntOrDefault("TRADING_MONITOR_INTERVAL", cfg.TradingConfig.MonitorIntervalSeconds)

	cfg.RiskConfig.MaxDrawdownPct = getEnvFloatOrDefault("RISK_MAX_DRAWDOWN_PCT", cfg.RiskConfig.MaxDrawdownPct)
	cfg.RiskConfig.MaxDailyLossPct = getEnvFloatOrDefault("RISK_MAX_DAILY_LOSS_PCT", cfg.RiskConfig.MaxDailyLossPct)
	cfg.RiskConfig.MaxDailyTrades = getEnvIntOrDefault("RISK_MAX_DAILY_TRADES", cfg.RiskConfig.MaxDailyTrades)
	cfg.RiskConfig.MaxPositionSizePct = getEnvFloatOrDefault("RISK_MAX_POSITION_SIZE_PCT", cfg.RiskConfig.MaxPositionSizePct)
	cfg.RiskConfig.MaxPortfolioRiskPct = getEnvFloatOrDefault("RISK_MAX_PORTFOLIO_RISK_PCT", cfg.RiskConfig.MaxPortfolioRiskPct)

	cfg.MarketConfig.WebsocketURL = getEnvOrDefault("MARKET_WEBSOCKET_URL", cfg.MarketConfig.WebsocketURL)
	cfg.MarketConfig.RestURL = getEnvOrDefault("MARKET_REST_URL", cfg.MarketConfig.RestURL)
	cfg.MarketConfig.MockMode = getEnvOrDefault("MOCK_MODE", boolString(cfg.MarketConfig.MockMode)) == "true"

	cfg.AIConfig.Enabled = getEnvOrDefault("AI_ENABLED", boolString(cfg.AIConfig.Enabled)) == "true"
	cfg.AIConfig.APIKey = getEnvOrDefault("OPENROUTER_API_KEY", cfg.AIConfig.APIKey)
	cfg.AIConfig.Model = getEnvOrDefault("AI_MODEL", cfg.AIConfig.Model)
	cfg.AIConfig.MinConfidence = getEnvFloatOrDefault("AI_MIN_CONFIDENCE", cfg.AIConfig.MinConfidence)

	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DATABASE_ENABLED", boolString(cfg.DatabaseConfig.Enabled)) == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DATABASE_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DATABASE_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DATABASE_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DATABASE_NAME", cfg.DatabaseConfig.Database)

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	cfg.ServerConfig.Enabled = getEnvOrDefault("SERVER_ENABLED", boolString(cfg.ServerConfig.Enabled)) == "true"
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Pretty = getEnvOrDefault("LOG_PRETTY", boolString(cfg.LoggingConfig.Pretty)) == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// GenerateSampleConfig writes a commented starter configuration file.
func GenerateSampleConfig(filename string) error {
	config := Config{}
	applyDefaults(&config)
	config.MarketConfig.MockMode = true
	config.ServerConfig.Enabled = true

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
