package journal

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"futures_bot/pkg/db"
)

// NewSink: лог всегда, postgres если есть пул.
func NewSink(ctx context.Context, tx *db.PgTxManager, log *zap.Logger) (Sink, error) {
	zs := NewZapSink(log.Named("journal"))
	if tx == nil {
		return zs, nil
	}

	pg := NewPgSink(tx.Conn(), log.Named("journal"))
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pg.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return Multi{zs, pg}, nil
}

func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(NewSink),
	)
}
