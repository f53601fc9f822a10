package clickhouse

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"futures_bot/internal/models"
	"futures_bot/internal/modules/clickhouse/service"
	"futures_bot/internal/modules/config"
)

// CandleArchive: приёмник закрытых свечей. Без clickhouse.addr архив выключен.
type CandleArchive interface {
	Archive(ctx context.Context, symbol, interval string, candles []models.Candle) error
}

type noop struct{}

func (noop) Archive(context.Context, string, string, []models.Candle) error { return nil }

func NewArchive(ctx context.Context, lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (CandleArchive, error) {
	cc := cfg.ClickHouse
	if cc.Addr == "" {
		log.Info("clickhouse archive disabled")
		return noop{}, nil
	}
	scfg := service.Config{
		Addr:     cc.Addr,
		Database: cc.Database,
		Username: cc.Username,
		Password: cc.Password,
		Table:    cc.Table,
	}
	conn, err := service.Open(ctx, scfg)
	if err != nil {
		return nil, err
	}
	a := service.NewArchive(conn, scfg, log.Named("clickhouse"))
	if err := a.EnsureSchema(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return a.Close() }})
	return a, nil
}

func Module() fx.Option {
	return fx.Module("clickhouse",
		fx.Provide(NewArchive),
	)
}
