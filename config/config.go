package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full session configuration. It is loaded once at startup
// and replaced atomically on reload; nothing mutates it in place.
type Config struct {
	Exchange   ExchangeConfig  `json:"exchange"`
	Trading    TradingConfig   `json:"trading"`
	Scheduler  SchedulerConfig `json:"scheduler"`
	Strategies StrategyConfig  `json:"strategies"`
	Breaker    BreakerConfig   `json:"circuit_breaker"`
	Logging    LoggingConfig   `json:"logging"`
	Server     ServerConfig    `json:"server"`
	Auth       AuthConfig      `json:"auth"`
	Vault      VaultConfig     `json:"vault"`
	Redis      RedisConfig     `json:"redis"`
	Database   DatabaseConfig  `json:"database"`
}

// ExchangeConfig selects and parameterizes the exchange client.
type ExchangeConfig struct {
	Name           string `json:"name"`       // e.g. "hyperliquid"
	PaperMode      bool   `json:"paper_mode"` // simulated fills, no live orders
	APIKey         string `json:"api_key"`
	SecretKey      string `json:"secret_key"`
	DataBaseURL    string `json:"data_base_url"` // public candle/klines endpoint
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// TradingConfig is the risk snapshot consumed by the order gate and the
// position manager.
type TradingConfig struct {
	MonitoredCoins         []string `json:"monitored_coins"`
	MaxPositions           int      `json:"max_positions"`
	PositionSizeUSD        float64  `json:"position_size_usd"`
	StopLossPercent        float64  `json:"stop_loss_percent"`
	TakeProfitPercent      float64  `json:"take_profit_percent"`
	TrailingStopPercent    float64  `json:"trailing_stop_percent"`
	TrailingStopActivation float64  `json:"trailing_stop_activation"` // profit % before trailing arms
	MinSignalStrength      float64  `json:"min_signal_strength"`
	CooldownSeconds        int      `json:"cooldown_seconds"` // per-coin pause after a fill
	CloseRetryLimit        int      `json:"close_retry_limit"`
}

// SchedulerConfig controls the signal scheduling loops.
type SchedulerConfig struct {
	BaseTickSeconds          int            `json:"base_tick_seconds"`
	PositionCheckSeconds     int            `json:"position_check_seconds"`
	SignalQueueSize          int            `json:"signal_queue_size"`
	CheckIntervals           map[string]int `json:"check_intervals"`             // strategy name -> seconds
	MinRequestIntervalMillis int            `json:"min_request_interval_millis"` // per-strategy fetch gate
}

// StrategyConfig enables/disables the built-in signal generators.
type StrategyConfig struct {
	Enabled map[string]bool `json:"enabled"` // strategy name -> on/off
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	Enabled              bool `json:"enabled"`
	MaxConsecutiveLosses int  `json:"max_consecutive_losses"`
	MaxDailyTrades       int  `json:"max_daily_trades"`
	CooldownMinutes      int  `json:"cooldown_minutes"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // JSON lines instead of console output
}

type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type AuthConfig struct {
	Enabled        bool   `json:"enabled"`
	JWTSecret      string `json:"jwt_secret"`
	PasswordBcrypt string `json:"password_bcrypt"` // bcrypt hash of the operator password
	TokenTTLHours  int    `json:"token_ttl_hours"`
}

type VaultConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
	Token   string `json:"token"`
	Secret  string `json:"secret"` // path of the exchange credential secret
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type DatabaseConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"` // postgres connection string
}

// Default returns the built-in configuration. Check intervals mirror the
// candle cadence of each generator so a generator runs once per fresh candle.
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			Name:           "hyperliquid",
			PaperMode:      true,
			DataBaseURL:    "https://api.binance.com",
			TimeoutSeconds: 10,
		},
		Trading: TradingConfig{
			MonitoredCoins:         []string{"BTC", "ETH", "SOL"},
			MaxPositions:           10,
			PositionSizeUSD:        20,
			StopLossPercent:        2.2,
			TakeProfitPercent:      10.0,
			TrailingStopPercent:    0.2,
			TrailingStopActivation: 0.3,
			MinSignalStrength:      0.75,
			CooldownSeconds:        300,
			CloseRetryLimit:        5,
		},
		Scheduler: SchedulerConfig{
			BaseTickSeconds:      1,
			PositionCheckSeconds: 3,
			SignalQueueSize:      64,
			CheckIntervals: map[string]int{
				"rsi_1m":        60,
				"rsi_5m":        300,
				"rsi_1h":        3600,
				"rsi_4h":        14400,
				"sma_5m":        300,
				"macd_15m":      900,
				"scalping_1m":   60,
				"range_24h_low": 1800,
				"range_7d_low":  3600,
			},
			MinRequestIntervalMillis: 500,
		},
		Strategies: StrategyConfig{
			Enabled: map[string]bool{
				"rsi_1m":        true,
				"rsi_5m":        true,
				"rsi_1h":        true,
				"rsi_4h":        true,
				"sma_5m":        true,
				"macd_15m":      false,
				"scalping_1m":   true,
				"range_24h_low": false,
				"range_7d_low":  false,
			},
		},
		Breaker: BreakerConfig{
			Enabled:              true,
			MaxConsecutiveLosses: 5,
			MaxDailyTrades:       100,
			CooldownMinutes:      30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		Auth: AuthConfig{
			TokenTTLHours: 24,
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
	}
}

// Load reads configuration from the given JSON file, falling back to
// defaults for anything the file omits, then applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides lets operational settings be supplied without editing
// the config file. Secrets in particular should come from the environment
// or Vault, not the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BOT_EXCHANGE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("BOT_EXCHANGE_SECRET_KEY"); v != "" {
		c.Exchange.SecretKey = v
	}
	if v := os.Getenv("BOT_PAPER_MODE"); v != "" {
		c.Exchange.PaperMode = v == "true" || v == "1"
	}
	if v := os.Getenv("BOT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BOT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("BOT_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("BOT_VAULT_ADDR"); v != "" {
		c.Vault.Address = v
		c.Vault.Enabled = true
	}
	if v := os.Getenv("BOT_VAULT_TOKEN"); v != "" {
		c.Vault.Token = v
	}
	if v := os.Getenv("BOT_REDIS_ADDR"); v != "" {
		c.Redis.Address = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("BOT_DATABASE_URL"); v != "" {
		c.Database.URL = v
		c.Database.Enabled = true
	}
	if v := os.Getenv("BOT_MONITORED_COINS"); v != "" {
		coins := []string{}
		for _, coin := range strings.Split(v, ",") {
			coin = strings.TrimSpace(strings.ToUpper(coin))
			if coin != "" {
				coins = append(coins, coin)
			}
		}
		if len(coins) > 0 {
			c.Trading.MonitoredCoins = coins
		}
	}
}

// Validate rejects configurations the engine must not run with. A bad risk
// snapshot is fatal at session start, never patched up silently.
func (c *Config) Validate() error {
	t := c.Trading

	if len(t.MonitoredCoins) == 0 {
		return fmt.Errorf("config: monitored_coins must not be empty")
	}
	if t.MaxPositions <= 0 {
		return fmt.Errorf("config: max_positions must be positive, got %d", t.MaxPositions)
	}
	if t.PositionSizeUSD <= 0 {
		return fmt.Errorf("config: position_size_usd must be positive, got %.2f", t.PositionSizeUSD)
	}
	if t.StopLossPercent <= 0 || t.StopLossPercent >= 100 {
		return fmt.Errorf("config: stop_loss_percent must be in (0, 100), got %.2f", t.StopLossPercent)
	}
	if t.TakeProfitPercent <= 0 {
		return fmt.Errorf("config: take_profit_percent must be positive, got %.2f", t.TakeProfitPercent)
	}
	if t.TrailingStopPercent <= 0 || t.TrailingStopPercent >= 100 {
		return fmt.Errorf("config: trailing_stop_percent must be in (0, 100), got %.2f", t.TrailingStopPercent)
	}
	if t.TrailingStopActivation < 0 {
		return fmt.Errorf("config: trailing_stop_activation must not be negative, got %.2f", t.TrailingStopActivation)
	}
	if t.MinSignalStrength < 0 || t.MinSignalStrength > 1 {
		return fmt.Errorf("config: min_signal_strength must be in [0, 1], got %.2f", t.MinSignalStrength)
	}
	if t.CloseRetryLimit <= 0 {
		return fmt.Errorf("config: close_retry_limit must be positive, got %d", t.CloseRetryLimit)
	}

	s := c.Scheduler
	if s.BaseTickSeconds <= 0 {
		return fmt.Errorf("config: base_tick_seconds must be positive, got %d", s.BaseTickSeconds)
	}
	if s.PositionCheckSeconds <= 0 {
		return fmt.Errorf("config: position_check_seconds must be positive, got %d", s.PositionCheckSeconds)
	}
	if s.SignalQueueSize <= 0 {
		return fmt.Errorf("config: signal_queue_size must be positive, got %d", s.SignalQueueSize)
	}
	for name, interval := range s.CheckIntervals {
		if interval < s.BaseTickSeconds {
			return fmt.Errorf("config: check interval for %s (%ds) is below the base tick (%ds)",
				name, interval, s.BaseTickSeconds)
		}
	}

	if c.Exchange.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: exchange timeout_seconds must be positive, got %d", c.Exchange.TimeoutSeconds)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth enabled but jwt_secret is empty")
	}

	return nil
}

// CheckInterval returns the configured check interval for a strategy,
// defaulting to one minute for strategies the map does not mention.
func (c *Config) CheckInterval(strategyName string) time.Duration {
	if secs, ok := c.Scheduler.CheckIntervals[strategyName]; ok {
		return time.Duration(secs) * time.Second
	}
	return time.Minute
}

// ExchangeTimeout is the caller-imposed deadline for every exchange call.
func (c *Config) ExchangeTimeout() time.Duration {
	return time.Duration(c.Exchange.TimeoutSeconds) * time.Second
}
