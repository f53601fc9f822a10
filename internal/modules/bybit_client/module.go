package bybit_client

import (
	"go.uber.org/fx"

	"futures_bot/internal/exchange"
	"futures_bot/internal/modules/bybit_client/service"
	"futures_bot/internal/modules/config"
)

func NewClient(cfg *config.Config) *service.Client {
	ec := cfg.Exchange
	return service.NewClient(service.Config{
		BaseURL:    ec.BaseURL,
		APIKey:     ec.APIKey,
		APISecret:  ec.APISecret,
		Category:   ec.Category,
		RecvWindow: ec.RecvWindow,
		Timeout:    ec.Timeout,
	})
}

func Module() fx.Option {
	return fx.Module("bybit_client",
		fx.Provide(
			NewClient,
			func(c *service.Client) exchange.Gateway { return c },
		),
	)
}
