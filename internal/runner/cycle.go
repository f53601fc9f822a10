package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"futures_bot/internal/executor"
	"futures_bot/internal/flatten"
	"futures_bot/internal/indicator"
	"futures_bot/internal/metrics"
	"futures_bot/internal/models"
	"futures_bot/internal/risk"
	"futures_bot/internal/strategy"
	"futures_bot/pkg/tracing"
)

type Action string

const (
	ActionNone       Action = "none"
	ActionHolding    Action = "holding"
	ActionSkipped    Action = "skipped"
	ActionDryRun     Action = "dry_run"
	ActionEntered    Action = "entered"
	ActionEntryError Action = "entry_failed"
	ActionFlattened  Action = "flattened"
)

type CycleReport struct {
	At       time.Time
	Candles  int
	LastBar  time.Time
	Position models.PositionSnapshot
	Equity   float64
	Decision strategy.Decision
	Action   Action
	Skip     string
	Order    *models.SizedOrder
	Exec     *executor.Result
	Flatten  *flatten.Report
}

// Cycle: один проход торгового цикла на последней закрытой свече.
func (r *Runner) Cycle(ctx context.Context) (rep CycleReport, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "runner.cycle")
	span.SetTag("symbol", r.cfg.Symbol)
	defer func() {
		result := string(rep.Action)
		if err != nil {
			result = "error"
			span.SetTag("error", true)
		}
		metrics.CyclesTotal.WithLabelValues(result).Inc()
		span.Finish()

		r.mu.Lock()
		r.last = rep
		r.mu.Unlock()
	}()

	now := r.now()
	rep.At = now.UTC()

	candles, err := r.d.Gateway.FetchCandles(ctx, r.cfg.Symbol, r.cfg.Interval, r.cfg.Lookback)
	if err != nil {
		return rep, models.Wrap(models.ErrExchange, "fetch candles", err)
	}
	candles = dropForming(candles, r.interval, now)
	if err = indicator.ValidateSeries(candles); err != nil {
		return rep, err
	}
	rep.Candles = len(candles)
	if len(candles) > 0 {
		rep.LastBar = candles[len(candles)-1].OpenTime
	}

	if r.d.Archive != nil && len(candles) > 0 {
		if aerr := r.d.Archive.Archive(ctx, r.cfg.Symbol, r.cfg.Interval, candles); aerr != nil {
			r.d.Log.Warn("archive candles", zap.Error(aerr))
		}
	}

	gen := r.flattenGen()
	snap, err := r.d.Gateway.FetchPosition(ctx, r.cfg.Symbol)
	if err != nil {
		return rep, models.Wrap(models.ErrExchange, "fetch position", err)
	}
	rep.Position = snap

	equity, err := r.equity(ctx)
	if err != nil {
		return rep, err
	}
	rep.Equity = equity
	dailyStop := r.trackDay(now, equity)

	if !snap.IsFlat() {
		return r.manageOpen(ctx, rep, now, dailyStop)
	}
	r.mu.Lock()
	r.openedAt = time.Time{}
	stopped := r.dailyStopped
	r.mu.Unlock()

	if len(candles) < r.d.Engine.MinCandles() {
		rep.Action, rep.Skip = ActionSkipped, "data_insufficient"
		r.d.Log.Info("not enough candles", zap.Int("have", len(candles)), zap.Int("need", r.d.Engine.MinCandles()))
		return rep, nil
	}

	r.mu.Lock()
	st := r.st
	r.mu.Unlock()
	dec, st, err := r.d.Engine.Evaluate(candles, st)
	if err != nil {
		if errors.Is(err, models.ErrDataInsufficient) {
			rep.Action, rep.Skip = ActionSkipped, "data_insufficient"
			return rep, nil
		}
		return rep, err
	}
	r.mu.Lock()
	r.st = st
	r.mu.Unlock()
	rep.Decision = dec

	if !dec.Fired {
		rep.Action = ActionNone
		r.d.Log.Debug("no signal", zap.String("note", dec.Note))
		return rep, nil
	}

	intent := dec.Intent
	metrics.SignalsTotal.WithLabelValues(string(intent.Mode), string(intent.Side)).Inc()
	r.d.Log.Info("signal", append(tracing.LogFields(ctx),
		zap.String("side", string(intent.Side)),
		zap.String("reason", intent.Reason),
		zap.Float64("price", intent.ReferencePrice),
		zap.Time("bar", intent.CandleAt),
	)...)
	r.emit(ctx, "signal", map[string]any{
		"side": string(intent.Side), "reason": intent.Reason, "mode": string(intent.Mode),
		"price": intent.ReferencePrice, "bar": intent.CandleAt,
	})

	if reason := r.gate(now, intent.CandleAt, stopped); reason != "" {
		rep.Action, rep.Skip = ActionSkipped, reason
		r.d.Log.Info("signal skipped", zap.String("reason", reason))
		return rep, nil
	}

	return r.enter(ctx, rep, intent, equity, now, gen)
}

// dropForming отрезает хвостовую свечу, которая ещё не закрылась к now.
func dropForming(candles []models.Candle, interval time.Duration, now time.Time) []models.Candle {
	if interval <= 0 {
		return candles
	}
	for len(candles) > 0 && candles[len(candles)-1].OpenTime.Add(interval).After(now) {
		candles = candles[:len(candles)-1]
	}
	return candles
}

func (r *Runner) equity(ctx context.Context) (float64, error) {
	if r.cfg.DryRun {
		return r.cfg.StartBalance, nil
	}
	eq, err := r.d.Gateway.FetchEquity(ctx)
	if err != nil {
		return 0, models.Wrap(models.ErrExchange, "fetch equity", err)
	}
	return eq, nil
}

// trackDay запоминает equity на начало UTC-дня и говорит, пробит ли дневной лимит убытка.
func (r *Runner) trackDay(now time.Time, equity float64) bool {
	day := now.UTC().Truncate(24 * time.Hour)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !day.Equal(r.day) {
		r.day, r.dayStart, r.dailyStopped = day, equity, false
	}
	if r.d.Guard.ShouldDailyStop(r.dayStart, equity) {
		if !r.dailyStopped {
			r.d.Log.Warn("daily loss limit hit", zap.Float64("day_start", r.dayStart), zap.Float64("equity", equity))
		}
		r.dailyStopped = true
		return true
	}
	return false
}

func (r *Runner) manageOpen(ctx context.Context, rep CycleReport, now time.Time, dailyStop bool) (CycleReport, error) {
	r.mu.Lock()
	if r.openedAt.IsZero() {
		// позиция пришла из прошлого запуска, считаем с момента, когда её увидели
		r.openedAt = now
	}
	openedAt := r.openedAt
	r.mu.Unlock()

	reason := ""
	switch {
	case dailyStop:
		reason = "daily_loss"
	case r.d.Guard.ShouldTimeout(openedAt, now, r.interval):
		reason = "timeout"
	}
	if reason == "" {
		rep.Action = ActionHolding
		return rep, nil
	}

	frep, err := r.Flatten(ctx, reason)
	rep.Flatten = &frep
	rep.Action, rep.Skip = ActionFlattened, reason
	return rep, err
}

func (r *Runner) gate(now, bar time.Time, dailyStopped bool) string {
	if dailyStopped {
		return "daily_loss_limit"
	}
	if !r.cfg.Session.Contains(now) {
		return "outside_session"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.limiter.Allow(now) {
		return "rate_limit"
	}
	if inCooldown(r.lastEntryBar, bar, r.cfg.CooldownBars, r.interval) {
		return "cooldown"
	}
	return ""
}

func (r *Runner) recordEntry(now, bar time.Time, live bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiter.Record(now)
	r.lastEntryBar = bar
	if live {
		r.openedAt = now
	}
}

// enter: gen это счётчик Flatten на момент снимка позиции в Cycle.
func (r *Runner) enter(ctx context.Context, rep CycleReport, intent models.SignalIntent, equity float64, now time.Time, gen uint64) (CycleReport, error) {
	prec, err := r.d.Gateway.FetchInstrumentPrecision(ctx, r.cfg.Symbol)
	if err != nil {
		return rep, models.Wrap(models.ErrExchange, "fetch precision", err)
	}

	stopDist, _ := r.d.Planner.Distances(intent)
	rawQty := risk.SizeByDistance(equity, r.cfg.RiskPerTradePct, stopDist)
	order, err := r.d.Planner.Plan(intent, rawQty, prec)
	if err != nil {
		rep.Action, rep.Skip = ActionSkipped, "plan"
		if errors.Is(err, models.ErrInsufficientNotional) {
			r.d.Log.Info("order too small", zap.Error(err))
			return rep, nil
		}
		return rep, err
	}
	rep.Order = &order

	if r.cfg.DryRun {
		r.recordEntry(now, intent.CandleAt, false)
		rep.Action = ActionDryRun
		r.d.Log.Info("[dry-run] entry",
			zap.String("side", string(order.Side)),
			zap.Float64("qty", order.Quantity),
			zap.Float64("entry", order.EntryPrice),
			zap.Float64("sl", order.StopPrice),
			zap.Float64("tp", order.TargetPrice),
		)
		r.emit(ctx, "entry.dry_run", map[string]any{
			"side": string(order.Side), "qty": order.Quantity, "entry": order.EntryPrice,
			"sl": order.StopPrice, "tp": order.TargetPrice,
		})
		return rep, nil
	}

	release, err := r.d.Locks.Acquire(ctx, r.cfg.Symbol)
	if err != nil {
		return rep, err
	}
	// пока ждали лок, мог пройти flatten или открыться позиция: решение принято по старому снимку
	if reason, err := r.recheck(ctx, gen); reason != "" || err != nil {
		release()
		if err != nil {
			return rep, err
		}
		rep.Action, rep.Skip = ActionSkipped, reason
		r.d.Log.Warn("entry dropped under lock", zap.String("reason", reason))
		return rep, nil
	}
	res, err := r.d.Executor.Execute(ctx, r.cfg.Symbol, order, prec)
	release()
	rep.Exec = &res

	if res.FilledQty > 0 {
		r.recordEntry(now, intent.CandleAt, true)
	}
	if err == nil {
		rep.Action = ActionEntered
		r.notify(ctx, fmt.Sprintf("📈 %s %s qty=%g avg=%g SL=%g TP=%g",
			r.cfg.Symbol, order.Side, res.FilledQty, res.AvgPrice, res.Stop, res.Target))
		return rep, nil
	}

	rep.Action = ActionEntryError
	r.d.Log.Error("entry failed", zap.String("state", string(res.State)), zap.Error(err))
	if !res.Exposed() {
		r.notify(ctx, fmt.Sprintf("⚠️ %s вход не состоялся: %v", r.cfg.Symbol, err))
		return rep, err
	}

	// позиция открыта без защиты
	r.notify(ctx, fmt.Sprintf("⚠️ %s позиция без SL/TP (%v), закрываем", r.cfg.Symbol, err))
	frep, ferr := r.Flatten(ctx, "stops_failed")
	rep.Flatten = &frep
	if ferr != nil {
		return rep, ferr
	}
	return rep, err
}

// recheck вызывается под локом символа перед отправкой входа.
func (r *Runner) recheck(ctx context.Context, gen uint64) (string, error) {
	if r.flattenGen() != gen {
		return "flattened", nil
	}
	snap, err := r.d.Gateway.FetchPosition(ctx, r.cfg.Symbol)
	if err != nil {
		return "", models.Wrap(models.ErrExchange, "fetch position", err)
	}
	if !snap.IsFlat() {
		return "position_open", nil
	}
	return "", nil
}
