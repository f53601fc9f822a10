package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
trading:
  symbol: ETHUSDT
  interval: "15"
strategy:
  mode: breakout
execution:
  poll_interval: 100ms
flatten:
  settle_delay: 2s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Trading.Symbol)
	assert.Equal(t, "15", cfg.Trading.Interval)
	assert.Equal(t, "breakout", cfg.Strategy.Mode)
	assert.Equal(t, 100*time.Millisecond, cfg.Execution.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Flatten.SettleDelay)

	// не заданные в файле поля остаются дефолтными
	assert.Equal(t, 10, cfg.Strategy.EMAFast)
	assert.Equal(t, 30, cfg.Strategy.EMASlow)
	assert.Equal(t, 0.20, cfg.Strategy.ATRMinPct)
	assert.Equal(t, 1.20, cfg.Strategy.ATRMaxPct)
	assert.Equal(t, 3, cfg.Trading.MaxEntriesPerHour)
	assert.Equal(t, 5, cfg.Flatten.MaxRounds)
	assert.Equal(t, 0.5, cfg.Risk.RiskPerTradePct)
	assert.True(t, cfg.Trading.DryRun)
}

func TestLoadEnvWins(t *testing.T) {
	t.Setenv("SYMBOL", "SOLUSDT")
	t.Setenv("DRY_RUN", "false")
	t.Setenv("TIE_SIDE", "LONG")
	t.Setenv("RISK_PER_TRADE_PCT", "1.25")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")
	t.Setenv("BYBIT_TESTNET", "true")

	cfg, err := Load(writeConfig(t, "trading:\n  symbol: BTCUSDT\n"))
	require.NoError(t, err)

	assert.Equal(t, "SOLUSDT", cfg.Trading.Symbol)
	assert.False(t, cfg.Trading.DryRun)
	assert.Equal(t, "LONG", cfg.Strategy.TieSide)
	assert.Equal(t, 1.25, cfg.Risk.RiskPerTradePct)
	assert.Equal(t, int64(-100123), cfg.Telegram.ChatID)
	assert.Equal(t, "https://api-testnet.bybit.com", cfg.Exchange.BaseURL)
}

func TestLoadBreakoutEnv(t *testing.T) {
	t.Setenv("ALLOW_SHORT", "1")
	t.Setenv("EPS_BREAK", "0.002")
	t.Setenv("MIN_RANGE", "15")

	cfg, err := Load(writeConfig(t, "breakout:\n  allow_short: false\n"))
	require.NoError(t, err)

	assert.True(t, cfg.Breakout.AllowShort)
	assert.Equal(t, 0.002, cfg.Breakout.EpsBreak)
	assert.Equal(t, 15.0, cfg.Breakout.MinRange)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"ema order":  "strategy:\n  ema_fast: 30\n  ema_slow: 10\n",
		"tie side":   "strategy:\n  tie_side: BOTH\n",
		"mode":       "strategy:\n  mode: grid\n",
		"no symbol":  "trading:\n  symbol: \"\"\n",
		"zero stop":  "risk:\n  stop_loss_pct: 0\n",
		"zero break": "breakout:\n  lookback: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
