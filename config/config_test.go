package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, 0.75, cfg.Strategy.RiskPerPositionPct)
	assert.Equal(t, 6, cfg.Strategy.MaxPositions)
	assert.Equal(t, 6.0, cfg.Strategy.KillSwitchPct)
	assert.Equal(t, 300, cfg.Runner.LoopIntervalSeconds)
	assert.Equal(t, 30, cfg.Runner.BaseBackoffSeconds)
	assert.Equal(t, 5, cfg.Runner.MaxConsecutiveErrors)
	assert.False(t, cfg.Strategy.UseBracketOrders)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero risk pct",
			mutate:  func(c *Config) { c.Strategy.RiskPerPositionPct = 0 },
			wantErr: true,
			errMsg:  "risk_per_position_pct",
		},
		{
			name:    "excessive risk pct",
			mutate:  func(c *Config) { c.Strategy.RiskPerPositionPct = 5 },
			wantErr: true,
			errMsg:  "risk_per_position_pct",
		},
		{
			name:    "zero max positions",
			mutate:  func(c *Config) { c.Strategy.MaxPositions = 0 },
			wantErr: true,
			errMsg:  "max_positions",
		},
		{
			name:    "zero kill switch",
			mutate:  func(c *Config) { c.Strategy.KillSwitchPct = 0 },
			wantErr: true,
			errMsg:  "drawdown_kill_switch_pct",
		},
		{
			name:    "zero loop interval",
			mutate:  func(c *Config) { c.Runner.LoopIntervalSeconds = 0 },
			wantErr: true,
			errMsg:  "loop_interval_seconds",
		},
		{
			name:    "zero backoff",
			mutate:  func(c *Config) { c.Runner.BaseBackoffSeconds = 0 },
			wantErr: true,
			errMsg:  "base_backoff_seconds",
		},
		{
			name:    "missing db path",
			mutate:  func(c *Config) { c.Ledger.DBPath = "" },
			wantErr: true,
			errMsg:  "db_path",
		},
		{
			name:    "zero retention",
			mutate:  func(c *Config) { c.Ledger.RetentionDays = 0 },
			wantErr: true,
			errMsg:  "retention_days",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Alpaca.MaxRetries = -1 },
			wantErr: true,
			errMsg:  "max_retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
strategy:
  risk_per_position_pct: 0.5
  max_positions: 4
  drawdown_kill_switch_pct: 8.0
runner:
  loop_interval_seconds: 60
  market_hours_only: false
ledger:
  db_path: ./test.db
  retention_days: 30
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Strategy.RiskPerPositionPct)
	assert.Equal(t, 4, cfg.Strategy.MaxPositions)
	assert.Equal(t, 8.0, cfg.Strategy.KillSwitchPct)
	assert.Equal(t, 60, cfg.Runner.LoopIntervalSeconds)
	assert.False(t, cfg.Runner.MarketHoursOnly)
	// Defaults survive for fields the file does not set.
	assert.Equal(t, 30, cfg.Runner.BaseBackoffSeconds)
	assert.Equal(t, "anthropic/claude-3-haiku", cfg.LLM.Model)
}

func TestLoadFromFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	jsonData := `{
		"strategy": {"risk_per_position_pct": 1.0, "max_positions": 3, "drawdown_kill_switch_pct": 6.0, "kill_switch_lookback_days": 30},
		"ledger": {"db_path": "./x.db", "retention_days": 14}
	}`
	require.NoError(t, os.WriteFile(path, []byte(jsonData), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1.0, cfg.Strategy.RiskPerPositionPct)
	assert.Equal(t, 3, cfg.Strategy.MaxPositions)
	assert.Equal(t, 14, cfg.Ledger.RetentionDays)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "key-from-env")
	t.Setenv("ALPACA_SECRET_KEY", "secret-from-env")
	t.Setenv("FOCUS_SYMBOLS", "aapl, msft ,nvda")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "key-from-env", cfg.Alpaca.APIKey)
	assert.Equal(t, "secret-from-env", cfg.Alpaca.SecretKey)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, cfg.Runner.FocusSymbols)
}

func TestRetryDelayDuration(t *testing.T) {
	a := AlpacaConfig{RetryDelay: "250ms"}
	assert.Equal(t, "250ms", a.RetryDelayDuration().String())

	a = AlpacaConfig{}
	assert.Equal(t, "1s", a.RetryDelayDuration().String())

	a = AlpacaConfig{RetryDelay: "garbage"}
	assert.Equal(t, "1s", a.RetryDelayDuration().String())
}
