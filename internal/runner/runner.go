// Package runner ведёт торговый цикл по одному символу (свечи, сигнал, вход, принудительное закрытие).
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"futures_bot/internal/exchange"
	"futures_bot/internal/executor"
	"futures_bot/internal/flatten"
	"futures_bot/internal/helper"
	"futures_bot/internal/models"
	"futures_bot/internal/planner"
	"futures_bot/internal/risk"
	"futures_bot/internal/strategy"
	"futures_bot/internal/symlock"
	"futures_bot/pkg/tracing"
)

type Archive interface {
	Archive(ctx context.Context, symbol, interval string, candles []models.Candle) error
}

type Notifier interface {
	Notify(ctx context.Context, text string)
}

type EventSink interface {
	Emit(ctx context.Context, ev models.Event)
}

type Config struct {
	Symbol            string
	Interval          string
	Lookback          int
	DryRun            bool
	StartBalance      float64
	RiskPerTradePct   float64
	MaxEntriesPerHour int
	CooldownBars      int
	Heartbeat         time.Duration
	Session           SessionWindow
}

type Deps struct {
	Gateway  exchange.Gateway
	Engine   strategy.Engine
	Planner  *planner.Planner
	Guard    risk.Guard
	Executor *executor.Executor
	Flatten  *flatten.Escalator
	Locks    *symlock.Locks
	Archive  Archive  // может быть nil
	Notifier Notifier // может быть nil
	Sink     EventSink
	Log      *zap.Logger
}

type Runner struct {
	cfg      Config
	interval time.Duration
	d        Deps
	now      func() time.Time

	mu           sync.Mutex
	st           strategy.State
	limiter      hourLimiter
	lastEntryBar time.Time
	openedAt     time.Time
	day          time.Time
	dayStart     float64
	dailyStopped bool
	flattens     uint64 // растёт при каждом Flatten под локом
	last         CycleReport
}

func New(cfg Config, d Deps) *Runner {
	loc := cfg.Session.loc
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		cfg:      cfg,
		interval: helper.IntervalDuration(cfg.Interval),
		d:        d,
		now:      time.Now,
		limiter:  hourLimiter{max: cfg.MaxEntriesPerHour, loc: loc},
	}
}

func (r *Runner) Symbol() string { return r.cfg.Symbol }

// LastReport: отчёт последнего цикла, для /status.
func (r *Runner) LastReport() CycleReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Runner) flattenGen() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flattens
}

func (r *Runner) notify(ctx context.Context, text string) {
	if r.d.Notifier != nil {
		r.d.Notifier.Notify(ctx, text)
	}
}

func (r *Runner) emit(ctx context.Context, kind string, payload map[string]any) {
	if r.d.Sink == nil {
		return
	}
	r.d.Sink.Emit(ctx, models.Event{Kind: kind, Time: r.now().UTC(), Symbol: r.cfg.Symbol, Payload: payload})
}

// Flatten закрывает позицию по символу под его блокировкой.
// ErrNotFlatAfterRetries возвращается как есть: дальше решает вызывающий.
func (r *Runner) Flatten(ctx context.Context, reason string) (flatten.Report, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "runner.flatten")
	defer span.Finish()
	span.SetTag("symbol", r.cfg.Symbol)
	span.SetTag("reason", reason)

	release, err := r.d.Locks.Acquire(ctx, r.cfg.Symbol)
	if err != nil {
		return flatten.Report{}, err
	}
	defer release()

	r.mu.Lock()
	r.flattens++
	r.mu.Unlock()

	r.d.Log.Warn("flatten requested", append(tracing.LogFields(ctx), zap.String("reason", reason))...)
	r.emit(ctx, "flatten.requested", map[string]any{"reason": reason})

	rep, err := r.d.Flatten.Flatten(ctx, r.cfg.Symbol)
	if err != nil {
		span.SetTag("error", true)
		r.notify(ctx, "🚨 NOT FLAT "+r.cfg.Symbol+" ("+reason+"): "+err.Error()+"\nНужно ручное вмешательство.")
		return rep, err
	}

	r.mu.Lock()
	r.openedAt = time.Time{}
	r.mu.Unlock()
	r.notify(ctx, "✅ "+r.cfg.Symbol+" flat ("+reason+"): "+string(rep.Status))
	return rep, nil
}
