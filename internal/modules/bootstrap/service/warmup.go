package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"futures_bot/internal/models"
)

type Gateway interface {
	FetchInstrumentPrecision(ctx context.Context, symbol string) (models.InstrumentPrecision, error)
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
	FetchPosition(ctx context.Context, symbol string) (models.PositionSnapshot, error)
}

type Archive interface {
	Archive(ctx context.Context, symbol, interval string, candles []models.Candle) error
}

type Notifier interface {
	Notify(ctx context.Context, text string)
}

type Config struct {
	Interval string
	Lookback int
}

// Warmuper до старта раннера прогревает кэш точности, заливает историю в архив
// и сообщает о позиции, оставшейся с прошлого запуска.
type Warmuper struct {
	gw      Gateway
	archive Archive
	n       Notifier
	cfg     Config
	log     *zap.Logger

	// ограничитель параллелизма, чтобы не словить rate limit
	sem chan struct{}
}

func NewWarmuper(gw Gateway, archive Archive, n Notifier, cfg Config, log *zap.Logger) *Warmuper {
	return &Warmuper{
		gw:      gw,
		archive: archive,
		n:       n,
		cfg:     cfg,
		log:     log,
		sem:     make(chan struct{}, 4),
	}
}

// Report: что нашли по символу при прогреве.
type Report struct {
	Symbol    string
	Precision models.InstrumentPrecision
	Candles   int
	Position  models.PositionSnapshot
}

func (w *Warmuper) Warmup(ctx context.Context, symbols []string) ([]Report, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	var wg sync.WaitGroup
	var firstErr error
	var mu sync.Mutex
	reports := make([]Report, len(symbols))

	for i, sym := range symbols {
		i, sym := i, sym
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.sem <- struct{}{}
			defer func() { <-w.sem }()

			rep, err := w.one(ctx, sym)
			mu.Lock()
			defer mu.Unlock()
			reports[i] = rep
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		w.notify(ctx, "⚠️ warmup finished with error: "+firstErr.Error())
		return reports, firstErr
	}
	for _, rep := range reports {
		if !rep.Position.IsFlat() {
			w.notify(ctx, fmt.Sprintf("ℹ️ %s: на старте открыта позиция %s %g @ %g",
				rep.Symbol, rep.Position.Side, rep.Position.Size, rep.Position.AvgEntryPrice))
		}
	}
	return reports, nil
}

func (w *Warmuper) one(ctx context.Context, sym string) (Report, error) {
	rep := Report{Symbol: sym}

	// 1) точность: заодно прогревает кэш клиента
	prec, err := w.gw.FetchInstrumentPrecision(ctx, sym)
	if err != nil {
		return rep, fmt.Errorf("warmup precision %s: %w", sym, err)
	}
	rep.Precision = prec

	// 2) история в архив
	candles, err := w.gw.FetchCandles(ctx, sym, w.cfg.Interval, w.cfg.Lookback)
	if err != nil {
		return rep, fmt.Errorf("warmup candles %s: %w", sym, err)
	}
	rep.Candles = len(candles)
	if w.archive != nil && len(candles) > 0 {
		if err := w.archive.Archive(ctx, sym, w.cfg.Interval, candles); err != nil {
			w.log.Warn("warmup archive", zap.String("symbol", sym), zap.Error(err))
		}
	}

	// 3) позиция с прошлого запуска
	pos, err := w.gw.FetchPosition(ctx, sym)
	if err != nil {
		return rep, fmt.Errorf("warmup position %s: %w", sym, err)
	}
	rep.Position = pos

	w.log.Info("warmup done",
		zap.String("symbol", sym),
		zap.Int("candles", rep.Candles),
		zap.Float64("tick", prec.TickSize),
		zap.Float64("qty_step", prec.QtyStep),
		zap.Bool("position_open", !pos.IsFlat()),
	)
	return rep, nil
}

func (w *Warmuper) notify(ctx context.Context, text string) {
	if w.n != nil {
		w.n.Notify(ctx, text)
	}
}
