package runner

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"futures_bot/internal/exchange"
	"futures_bot/internal/executor"
	"futures_bot/internal/flatten"
	"futures_bot/internal/journal"
	"futures_bot/internal/models"
	"futures_bot/internal/modules/bybit_websocket"
	"futures_bot/internal/modules/clickhouse"
	"futures_bot/internal/modules/config"
	"futures_bot/internal/planner"
	"futures_bot/internal/risk"
	"futures_bot/internal/strategy"
	"futures_bot/internal/symlock"
)

type Params struct {
	fx.In

	Cfg      *config.Config
	Gateway  exchange.Gateway
	Engine   strategy.Engine
	Archive  clickhouse.CandleArchive
	Sink     journal.Sink
	Notifier Notifier `optional:"true"`
	Log      *zap.Logger
}

func PlannerConfig(cfg *config.Config) planner.Config {
	pc := planner.DefaultConfig()
	pc.StopLossPct = cfg.Risk.StopLossPct
	pc.TakeProfitPct = cfg.Risk.TakeProfitPct
	pc.UseTakeProfit = cfg.Risk.UseTakeProfit
	return pc
}

func ExecutorConfig(cfg *config.Config) executor.Config {
	ec := executor.DefaultConfig()
	ec.EntryType = models.OrderType(cfg.Execution.EntryType)
	ec.MaxNudges = cfg.Execution.MaxNudges
	ec.MaxWidened = cfg.Execution.MaxWidened
	ec.WidenPct = cfg.Execution.WidenPct
	ec.PollInterval = cfg.Execution.PollInterval
	ec.MaxPolls = cfg.Execution.MaxPolls
	ec.RetryDelay = cfg.Execution.RetryDelay
	return ec
}

func FlattenConfig(cfg *config.Config) flatten.Config {
	return flatten.Config{
		MaxRounds:   cfg.Flatten.MaxRounds,
		SettleDelay: cfg.Flatten.SettleDelay,
		IOCCrossPct: cfg.Flatten.IOCCrossPct,
	}
}

func NewEscalator(cfg *config.Config, gw exchange.Gateway, sink journal.Sink, log *zap.Logger) *flatten.Escalator {
	return flatten.New(gw, FlattenConfig(cfg), log.Named("flatten"), sink)
}

func NewRunner(p Params, esc *flatten.Escalator, locks *symlock.Locks) (*Runner, error) {
	tc := p.Cfg.Trading
	session, err := ParseSession(tc.Session.Enabled, tc.Session.Start, tc.Session.End, tc.Session.TZ)
	if err != nil {
		return nil, err
	}
	log := p.Log.Named("runner").With(zap.String("symbol", tc.Symbol))
	return New(Config{
		Symbol:            tc.Symbol,
		Interval:          tc.Interval,
		Lookback:          tc.Lookback,
		DryRun:            tc.DryRun,
		StartBalance:      tc.StartBalance,
		RiskPerTradePct:   p.Cfg.Risk.RiskPerTradePct,
		MaxEntriesPerHour: tc.MaxEntriesPerHour,
		CooldownBars:      tc.CooldownBars,
		Heartbeat:         tc.Heartbeat,
		Session:           session,
	}, Deps{
		Gateway:  p.Gateway,
		Engine:   p.Engine,
		Planner:  planner.New(PlannerConfig(p.Cfg)),
		Guard:    risk.Guard{MaxBarsOpen: p.Cfg.Risk.MaxBarsOpen, DailyLossLimitPct: p.Cfg.Risk.DailyLossLimitPct},
		Executor: executor.New(p.Gateway, ExecutorConfig(p.Cfg), p.Log.Named("executor"), p.Sink),
		Flatten:  esc,
		Locks:    locks,
		Archive:  p.Archive,
		Notifier: p.Notifier,
		Sink:     p.Sink,
		Log:      log,
	}), nil
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			symlock.New,
			NewEscalator,
			NewRunner,
		),
		fx.Invoke(func(lc fx.Lifecycle, sd fx.Shutdowner, r *Runner, klines bybit_websocket.Klines, log *zap.Logger) {
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						err := r.Run(ctx, klines)
						if err != nil && !errors.Is(err, context.Canceled) {
							log.Error("runner stopped", zap.Error(err))
							_ = sd.Shutdown(fx.ExitCode(2))
						}
					}()
					return nil
				},
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
