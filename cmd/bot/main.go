package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"futures_bot/internal/journal"
	"futures_bot/internal/modules/bootstrap"
	"futures_bot/internal/modules/bybit_client"
	"futures_bot/internal/modules/bybit_websocket"
	"futures_bot/internal/modules/clickhouse"
	"futures_bot/internal/modules/config"
	"futures_bot/internal/modules/health"
	"futures_bot/internal/modules/postgres"
	telegram "futures_bot/internal/modules/telegram_bot"
	"futures_bot/internal/runner"
	"futures_bot/internal/strategy"
	"futures_bot/pkg/logger"
	"futures_bot/pkg/tracing"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(cfg.Log.Level, cfg.Service.Name)
}

func initTracing(lc fx.Lifecycle, cfg *config.Config) error {
	tracing.SetServiceName(cfg.Service.Name)
	_, closer, err := tracing.InitTracer(tracing.Config{
		Enabled: cfg.Tracing.Enabled,
		Host:    cfg.Tracing.Host,
		Port:    cfg.Tracing.Port,
	})
	if err != nil {
		return err
	}
	lc.Append(fx.StopHook(closer))
	return nil
}

func main() {
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
			newLogger,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		config.Module(),
		fx.Invoke(initTracing),
		postgres.Module(),
		journal.Module(),
		clickhouse.Module(),
		bybit_client.Module(),
		strategy.Module(),
		telegram.Module(),
		// прогрев до старта стрима и раннера
		bootstrap.Module(),
		bybit_websocket.Module(),
		runner.Module(),
		health.Module(),
	)
	app.Run()
}
