package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"futures_bot/internal/exchange"
	bootstrap "futures_bot/internal/modules/bootstrap/service"
	"futures_bot/internal/modules/clickhouse"
	"futures_bot/internal/modules/config"
	"futures_bot/internal/runner"
)

type Params struct {
	fx.In

	Cfg      *config.Config
	Gateway  exchange.Gateway
	Archive  clickhouse.CandleArchive
	Notifier runner.Notifier `optional:"true"`
	Log      *zap.Logger
}

func NewWarmuper(p Params) *bootstrap.Warmuper {
	var n bootstrap.Notifier
	if p.Notifier != nil {
		n = p.Notifier
	}
	return bootstrap.NewWarmuper(p.Gateway, p.Archive, n, bootstrap.Config{
		Interval: p.Cfg.Trading.Interval,
		Lookback: p.Cfg.Trading.Lookback,
	}, p.Log.Named("bootstrap"))
}

// Module прогревает символ до старта раннера; ошибка прогрева не мешает старту.
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			NewWarmuper, // -> *bootstrap.Warmuper
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, wu *bootstrap.Warmuper, log *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if _, err := wu.Warmup(ctx, []string{cfg.Trading.Symbol}); err != nil {
						log.Warn("[BOOT] warmup error", zap.Error(err))
					}
					return nil
				},
			})
		}),
	)
}
