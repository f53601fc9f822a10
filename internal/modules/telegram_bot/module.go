package telegram

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"futures_bot/internal/modules/config"
	"futures_bot/internal/modules/telegram_bot/service"
	"futures_bot/internal/runner"
)

func NewTelegram(cfg *config.Config, log *zap.Logger) (*service.Telegram, error) {
	return service.NewTelegram(service.Config{
		Token:  cfg.Telegram.Token,
		ChatID: cfg.Telegram.ChatID,
		Symbol: cfg.Trading.Symbol,
	}, log.Named("telegram"))
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			NewTelegram,
			// Адаптер: *service.Telegram -> runner.Notifier
			func(t *service.Telegram) runner.Notifier {
				return t
			},
		),
		// команды получают раннер уже после сборки графа
		fx.Invoke(
			func(lc fx.Lifecycle, t *service.Telegram, r *runner.Runner) {
				ctx, cancel := context.WithCancel(context.Background())
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						go t.Start(ctx, r)
						return nil
					},
					OnStop: func(context.Context) error {
						cancel()
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
