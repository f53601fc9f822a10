package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDir         = "configs"
	defaultConfigFile = "values_local.yaml"
)

type Session struct {
	Enabled bool   `yaml:"enabled"`
	Start   string `yaml:"start"` // "06:00"
	End     string `yaml:"end"`   // "23:00"
	TZ      string `yaml:"tz"`
}

// Config ...
type Config struct {
	Service struct {
		Name       string `yaml:"name"`
		HealthAddr string `yaml:"health_addr"`
	} `yaml:"service"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Exchange struct {
		BaseURL    string        `yaml:"base_url"`
		WSURL      string        `yaml:"ws_url"`
		APIKey     string        `yaml:"api_key"`
		APISecret  string        `yaml:"api_secret"`
		Testnet    bool          `yaml:"testnet"`
		Category   string        `yaml:"category"` // linear
		RecvWindow int           `yaml:"recv_window"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"exchange"`

	Trading struct {
		Symbol            string        `yaml:"symbol"`
		Interval          string        `yaml:"interval"` // в минутах, как у bybit: "5"
		Lookback          int           `yaml:"lookback"`
		DryRun            bool          `yaml:"dry_run"`
		StartBalance      float64       `yaml:"start_balance"`
		Heartbeat         time.Duration `yaml:"heartbeat"`
		MaxEntriesPerHour int           `yaml:"max_entries_per_hour"`
		CooldownBars      int           `yaml:"cooldown_bars"`
		Session           Session       `yaml:"session"`
	} `yaml:"trading"`

	Strategy struct {
		Mode              string  `yaml:"mode"` // trend | breakout
		EMAFast           int     `yaml:"ema_fast"`
		EMASlow           int     `yaml:"ema_slow"`
		RSIPeriod         int     `yaml:"rsi_period"`
		ATRPeriod         int     `yaml:"atr_period"`
		VolumePeriod      int     `yaml:"volume_period"`
		VolumeMult        float64 `yaml:"volume_mult"`
		ATRMinPct         float64 `yaml:"atr_min_pct"`
		ATRMaxPct         float64 `yaml:"atr_max_pct"`
		RSILongMin        float64 `yaml:"rsi_long_min"`
		RSILongMax        float64 `yaml:"rsi_long_max"`
		RSIShortMin       float64 `yaml:"rsi_short_min"`
		RSIShortMax       float64 `yaml:"rsi_short_max"`
		AllowContinuation bool    `yaml:"allow_continuation"`
		TieSide           string  `yaml:"tie_side"`
	} `yaml:"strategy"`

	Breakout struct {
		Lookback     int     `yaml:"lookback"`
		EpsBreak     float64 `yaml:"eps_break"`
		MinRange     float64 `yaml:"min_range"`
		TieSide      string  `yaml:"tie_side"`
		UsePrevClose bool    `yaml:"use_prev_close"`
		AllowShort   bool    `yaml:"allow_short"`
	} `yaml:"breakout"`

	// Сколько от депозита теряем по стопу, а не по ликвидации
	Risk struct {
		RiskPerTradePct   float64 `yaml:"risk_per_trade_pct"`
		StopLossPct       float64 `yaml:"stop_loss_pct"`
		TakeProfitPct     float64 `yaml:"take_profit_pct"`
		UseTakeProfit     bool    `yaml:"use_take_profit"`
		DailyLossLimitPct float64 `yaml:"daily_loss_limit_pct"`
		MaxBarsOpen       int     `yaml:"max_bars_open"`
	} `yaml:"risk"`

	Execution struct {
		EntryType    string        `yaml:"entry_type"` // Limit | Market
		MaxNudges    int           `yaml:"max_nudges"`
		MaxWidened   int           `yaml:"max_widened"`
		WidenPct     float64       `yaml:"widen_pct"`
		PollInterval time.Duration `yaml:"poll_interval"`
		MaxPolls     int           `yaml:"max_polls"`
		RetryDelay   time.Duration `yaml:"retry_delay"`
	} `yaml:"execution"`

	Flatten struct {
		MaxRounds   int           `yaml:"max_rounds"`
		SettleDelay time.Duration `yaml:"settle_delay"`
		IOCCrossPct float64       `yaml:"ioc_cross_pct"`
	} `yaml:"flatten"`

	Health struct {
		Interval           time.Duration `yaml:"interval"`
		ErrorStreakMax     int           `yaml:"error_streak_max"`
		AutoPanic          bool          `yaml:"auto_panic"`
		StalePositionAfter time.Duration `yaml:"stale_position_after"`
	} `yaml:"health"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	DB string `yaml:"db_dsn"`

	ClickHouse struct {
		Addr     string `yaml:"addr"`
		Database string `yaml:"database"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Table    string `yaml:"table"`
	} `yaml:"clickhouse"`

	Tracing struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"tracing"`
}

func defaults() Config {
	var c Config
	c.Service.Name = "futures_bot"
	c.Service.HealthAddr = ":8080"
	c.Log.Level = "info"

	c.Exchange.BaseURL = "https://api.bybit.com"
	c.Exchange.WSURL = "wss://stream.bybit.com/v5/public/linear"
	c.Exchange.Category = "linear"
	c.Exchange.RecvWindow = 5000
	c.Exchange.Timeout = 10 * time.Second

	c.Trading.Symbol = "BTCUSDT"
	c.Trading.Interval = "5"
	c.Trading.Lookback = 200
	c.Trading.DryRun = true
	c.Trading.StartBalance = 10000
	c.Trading.Heartbeat = time.Minute
	c.Trading.MaxEntriesPerHour = 3
	c.Trading.CooldownBars = 1
	c.Trading.Session = Session{Start: "06:00", End: "23:00", TZ: "Europe/Zurich"}

	c.Strategy.Mode = "trend"
	c.Strategy.EMAFast = 10
	c.Strategy.EMASlow = 30
	c.Strategy.RSIPeriod = 14
	c.Strategy.ATRPeriod = 14
	c.Strategy.VolumePeriod = 10
	c.Strategy.VolumeMult = 1.0
	c.Strategy.ATRMinPct = 0.20
	c.Strategy.ATRMaxPct = 1.20
	c.Strategy.RSILongMin, c.Strategy.RSILongMax = 45, 75
	c.Strategy.RSIShortMin, c.Strategy.RSIShortMax = 25, 55
	c.Strategy.AllowContinuation = true
	c.Strategy.TieSide = "NONE"

	c.Breakout.Lookback = 20
	c.Breakout.TieSide = "NONE"

	c.Risk.RiskPerTradePct = 0.5
	c.Risk.StopLossPct = 1.0
	c.Risk.TakeProfitPct = 2.5
	c.Risk.UseTakeProfit = true
	c.Risk.DailyLossLimitPct = 2.0
	c.Risk.MaxBarsOpen = 50

	c.Execution.EntryType = "Limit"
	c.Execution.MaxNudges = 6
	c.Execution.MaxWidened = 6
	c.Execution.WidenPct = 0.1
	c.Execution.PollInterval = 250 * time.Millisecond
	c.Execution.MaxPolls = 40
	c.Execution.RetryDelay = 300 * time.Millisecond

	c.Flatten.MaxRounds = 5
	c.Flatten.SettleDelay = 800 * time.Millisecond
	c.Flatten.IOCCrossPct = 0.40

	c.Health.Interval = 30 * time.Second
	c.Health.ErrorStreakMax = 3
	c.Health.StalePositionAfter = 15 * time.Minute

	c.ClickHouse.Database = "market"
	c.ClickHouse.Username = "default"
	c.ClickHouse.Table = "candles"

	c.Tracing.Host = "localhost"
	c.Tracing.Port = 6831
	return c
}

// NewConfig читает configs/$CONFIG_FILE (по умолчанию values_local.yaml) и накладывает env.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	name := os.Getenv(configFilePathENV)
	if name == "" {
		name = defaultConfigFile
	}
	return Load(filepath.Join(configDir, name))
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config file")
	}
	defer func() {
		_ = file.Close()
	}()

	config := defaults()
	if err = yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, errors.Wrapf(err, "decode config file %s", path)
	}

	applyEnv(&config, viper.New())

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyEnv(c *Config, v *viper.Viper) {
	v.AutomaticEnv()

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	boolean := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	float := func(key string, dst *float64) {
		if v.IsSet(key) {
			*dst = v.GetFloat64(key)
		}
	}

	str("SYMBOL", &c.Trading.Symbol)
	boolean("DRY_RUN", &c.Trading.DryRun)
	str("BYBIT_API_KEY", &c.Exchange.APIKey)
	str("BYBIT_API_SECRET", &c.Exchange.APISecret)
	boolean("BYBIT_TESTNET", &c.Exchange.Testnet)
	str("TELEGRAM_TOKEN", &c.Telegram.Token)
	if v.IsSet("TELEGRAM_CHAT_ID") {
		c.Telegram.ChatID = v.GetInt64("TELEGRAM_CHAT_ID")
	}
	str("DATABASE_DSN", &c.DB)
	str("CLICKHOUSE_ADDR", &c.ClickHouse.Addr)
	float("RISK_PER_TRADE_PCT", &c.Risk.RiskPerTradePct)
	boolean("ALLOW_CONTINUATION", &c.Strategy.AllowContinuation)
	str("TIE_SIDE", &c.Strategy.TieSide)
	str("STRATEGY", &c.Strategy.Mode)
	float("EPS_BREAK", &c.Breakout.EpsBreak)
	float("MIN_RANGE", &c.Breakout.MinRange)
	boolean("ALLOW_SHORT", &c.Breakout.AllowShort)
	boolean("USE_PREV_CLOSE", &c.Breakout.UsePrevClose)

	if c.Exchange.Testnet && c.Exchange.BaseURL == "https://api.bybit.com" {
		c.Exchange.BaseURL = "https://api-testnet.bybit.com"
		c.Exchange.WSURL = "wss://stream-testnet.bybit.com/v5/public/linear"
	}
}

func (c *Config) Validate() error {
	s := c.Strategy
	switch {
	case c.Trading.Symbol == "":
		return fmt.Errorf("trading.symbol is required")
	case c.Trading.Lookback <= 0:
		return fmt.Errorf("trading.lookback must be > 0")
	case s.EMAFast <= 0 || s.EMASlow <= 0 || s.RSIPeriod <= 0 || s.ATRPeriod <= 0 || s.VolumePeriod <= 0:
		return fmt.Errorf("strategy windows must be > 0")
	case s.EMAFast >= s.EMASlow:
		return fmt.Errorf("strategy.ema_fast must be < strategy.ema_slow")
	case c.Breakout.Lookback <= 0:
		return fmt.Errorf("breakout.lookback must be > 0")
	case c.Risk.StopLossPct <= 0:
		return fmt.Errorf("risk.stop_loss_pct must be > 0")
	}
	for _, tie := range []string{s.TieSide, c.Breakout.TieSide} {
		switch strings.ToUpper(tie) {
		case "", "LONG", "SHORT", "NONE":
		default:
			return fmt.Errorf("tie_side %q must be LONG, SHORT or NONE", tie)
		}
	}
	switch s.Mode {
	case "trend", "breakout":
	default:
		return fmt.Errorf("strategy.mode %q must be trend or breakout", s.Mode)
	}
	return nil
}
