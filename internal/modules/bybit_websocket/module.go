package bybit_websocket

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"futures_bot/internal/models"
	"futures_bot/internal/modules/bybit_websocket/service"
	"futures_bot/internal/modules/config"
	healthsvc "futures_bot/internal/modules/health/service"
)

// Klines: общий буфер закрытых свечей от стрима к раннеру.
type Klines chan models.Candle

func NewStream(cfg *config.Config, state *healthsvc.State, log *zap.Logger) *service.Stream {
	return service.NewStream(service.Config{
		URL:      cfg.Exchange.WSURL,
		Symbol:   cfg.Trading.Symbol,
		Interval: cfg.Trading.Interval,
	}, state, log.Named("ws"))
}

// Module поднимает kline-стрим Bybit.
func Module() fx.Option {
	return fx.Module("bybit_websocket",
		fx.Provide(
			NewStream,
			func() Klines { return make(Klines, 64) },
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.Stream, out Klines) {
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go s.Run(ctx, out)
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
