package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete, immutable runtime configuration. It is built once
// at startup and passed by value to component constructors; nothing mutates
// it afterwards.
type Config struct {
	Alpaca   AlpacaConfig   `json:"alpaca" yaml:"alpaca"`
	LLM      LLMConfig      `json:"llm" yaml:"llm"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Runner   RunnerConfig   `json:"runner" yaml:"runner"`
	Ledger   LedgerConfig   `json:"ledger" yaml:"ledger"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// AlpacaConfig holds broker credentials and endpoint selection.
type AlpacaConfig struct {
	APIKey     string `json:"api_key" yaml:"api_key"`
	SecretKey  string `json:"secret_key" yaml:"secret_key"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
	MaxRetries int    `json:"max_retries" yaml:"max_retries"`
	RetryDelay string `json:"retry_delay" yaml:"retry_delay"` // e.g. "1s"
}

// LLMConfig holds decision-generator settings (OpenRouter).
type LLMConfig struct {
	APIKey         string  `json:"api_key" yaml:"api_key"`
	BaseURL        string  `json:"base_url" yaml:"base_url"`
	Model          string  `json:"model" yaml:"model"`
	Temperature    float64 `json:"temperature" yaml:"temperature"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int     `json:"max_retries" yaml:"max_retries"`
}

// StrategyConfig contains the risk parameters enforced by the executor and
// the kill switch.
type StrategyConfig struct {
	RiskPerPositionPct float64 `json:"risk_per_position_pct" yaml:"risk_per_position_pct"`
	MaxPositions       int     `json:"max_positions" yaml:"max_positions"`
	KillSwitchPct      float64 `json:"drawdown_kill_switch_pct" yaml:"drawdown_kill_switch_pct"`
	KillSwitchDays     int     `json:"kill_switch_lookback_days" yaml:"kill_switch_lookback_days"`
	UseBracketOrders   bool    `json:"use_bracket_orders" yaml:"use_bracket_orders"`
}

// RunnerConfig contains supervisory loop parameters.
type RunnerConfig struct {
	LoopIntervalSeconds  int      `json:"loop_interval_seconds" yaml:"loop_interval_seconds"`
	BaseBackoffSeconds   int      `json:"base_backoff_seconds" yaml:"base_backoff_seconds"`
	MaxConsecutiveErrors int      `json:"max_consecutive_errors" yaml:"max_consecutive_errors"`
	MarketHoursOnly      bool     `json:"market_hours_only" yaml:"market_hours_only"`
	FocusSymbols         []string `json:"focus_symbols,omitempty" yaml:"focus_symbols,omitempty"`
	CancelOrdersOnStop   bool     `json:"cancel_orders_on_shutdown" yaml:"cancel_orders_on_shutdown"`
	PendingOpMaxAgeHours int      `json:"pending_op_max_age_hours" yaml:"pending_op_max_age_hours"`
	ReconcileOrderLimit  int      `json:"reconcile_order_limit" yaml:"reconcile_order_limit"`
}

// LedgerConfig contains persistence parameters.
type LedgerConfig struct {
	DBPath        string `json:"db_path" yaml:"db_path"`
	RetentionDays int    `json:"retention_days" yaml:"retention_days"`
}

// LogConfig contains logging parameters.
type LogConfig struct {
	Dir   string `json:"dir" yaml:"dir"`
	Debug bool   `json:"debug" yaml:"debug"`
}

// RetryDelayDuration parses the broker retry base delay, defaulting to 1s.
func (a AlpacaConfig) RetryDelayDuration() time.Duration {
	if a.RetryDelay == "" {
		return time.Second
	}
	d, err := time.ParseDuration(a.RetryDelay)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// LoopInterval returns the sleep between successful cycles.
func (r RunnerConfig) LoopInterval() time.Duration {
	return time.Duration(r.LoopIntervalSeconds) * time.Second
}

// BaseBackoff returns the base delay used after a failed cycle.
func (r RunnerConfig) BaseBackoff() time.Duration {
	return time.Duration(r.BaseBackoffSeconds) * time.Second
}

// LoadFromFile loads configuration from a file (YAML or JSON), then overlays
// secrets from the environment.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv builds a configuration from defaults plus environment
// variables only (no config file). A .env file in the working directory is
// honoured when present.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config. Secrets are
// env-only: they never belong in a config file.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		c.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_SECRET_KEY"); v != "" {
		c.Alpaca.SecretKey = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		c.Alpaca.BaseURL = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LEDGER_DB_PATH"); v != "" {
		c.Ledger.DBPath = v
	}
	if v := os.Getenv("FOCUS_SYMBOLS"); v != "" {
		c.Runner.FocusSymbols = splitList(v)
	}
	if v := os.Getenv("MARKET_HOURS_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Runner.MarketHoursOnly = b
		}
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension).
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Strategy.RiskPerPositionPct <= 0 || c.Strategy.RiskPerPositionPct > 2.0 {
		return fmt.Errorf("strategy.risk_per_position_pct must be in (0, 2.0]")
	}
	if c.Strategy.MaxPositions < 1 {
		return fmt.Errorf("strategy.max_positions must be at least 1")
	}
	if c.Strategy.KillSwitchPct <= 0 || c.Strategy.KillSwitchPct > 20 {
		return fmt.Errorf("strategy.drawdown_kill_switch_pct must be in (0, 20]")
	}
	if c.Strategy.KillSwitchDays < 1 {
		return fmt.Errorf("strategy.kill_switch_lookback_days must be at least 1")
	}
	if c.Runner.LoopIntervalSeconds <= 0 {
		return fmt.Errorf("runner.loop_interval_seconds must be positive")
	}
	if c.Runner.BaseBackoffSeconds <= 0 {
		return fmt.Errorf("runner.base_backoff_seconds must be positive")
	}
	if c.Runner.MaxConsecutiveErrors < 1 {
		return fmt.Errorf("runner.max_consecutive_errors must be at least 1")
	}
	if c.Ledger.DBPath == "" {
		return fmt.Errorf("ledger.db_path is required")
	}
	if c.Ledger.RetentionDays < 1 {
		return fmt.Errorf("ledger.retention_days must be at least 1")
	}
	if c.Alpaca.MaxRetries < 0 {
		return fmt.Errorf("alpaca.max_retries must not be negative")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be in [0, 2]")
	}
	return nil
}

// Default returns a configuration with the stock strategy parameters.
func Default() *Config {
	return &Config{
		Alpaca: AlpacaConfig{
			BaseURL:    "https://paper-api.alpaca.markets",
			MaxRetries: 3,
			RetryDelay: "1s",
		},
		LLM: LLMConfig{
			BaseURL:        "https://openrouter.ai/api/v1",
			Model:          "anthropic/claude-3-haiku",
			Temperature:    0.1,
			MaxTokens:      4000,
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		Strategy: StrategyConfig{
			RiskPerPositionPct: 0.75,
			MaxPositions:       6,
			KillSwitchPct:      6.0,
			KillSwitchDays:     30,
		},
		Runner: RunnerConfig{
			LoopIntervalSeconds:  300,
			BaseBackoffSeconds:   30,
			MaxConsecutiveErrors: 5,
			MarketHoursOnly:      true,
			PendingOpMaxAgeHours: 24,
			ReconcileOrderLimit:  10,
		},
		Ledger: LedgerConfig{
			DBPath:        "./llmtrader.db",
			RetentionDays: 90,
		},
		Log: LogConfig{
			Dir: "logs",
		},
	}
}
