package runner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"futures_bot/internal/models"
)

// Run крутит Cycle на каждой закрытой свече из klines и по heartbeat.
// Ошибки цикла логируются и пропускаются; выходим только по ctx или когда позицию не удалось закрыть.
func (r *Runner) Run(ctx context.Context, klines <-chan models.Candle) error {
	hb := r.cfg.Heartbeat
	if hb <= 0 {
		hb = time.Minute
	}
	ticker := time.NewTicker(hb)
	defer ticker.Stop()

	r.d.Log.Info("runner started",
		zap.String("symbol", r.cfg.Symbol),
		zap.String("interval", r.cfg.Interval),
		zap.String("strategy", string(r.d.Engine.Name())),
		zap.Bool("dry_run", r.cfg.DryRun),
	)

	if err := r.step(ctx, "start"); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-klines:
			if !ok {
				klines = nil
				continue
			}
			if err := r.step(ctx, "kline"); err != nil {
				return err
			}
		case <-ticker.C:
			if err := r.step(ctx, "heartbeat"); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) step(ctx context.Context, trigger string) error {
	rep, err := r.Cycle(ctx)
	if err == nil {
		r.d.Log.Debug("cycle",
			zap.String("trigger", trigger),
			zap.String("action", string(rep.Action)),
			zap.String("skip", rep.Skip),
			zap.Int("candles", rep.Candles),
		)
		return nil
	}
	if errors.Is(err, models.ErrNotFlatAfterRetries) {
		r.d.Log.Error("position could not be flattened, stopping", zap.Error(err))
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.d.Log.Warn("cycle failed", zap.String("trigger", trigger), zap.Error(err))
	return nil
}
