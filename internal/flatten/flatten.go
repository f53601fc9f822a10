// Package flatten закрывает позицию по лестнице всё более агрессивных действий.
package flatten

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures_bot/internal/helper"
	"futures_bot/internal/metrics"
	"futures_bot/internal/models"
)

type Status string

const (
	StatusAlreadyFlat         Status = "already_flat"
	StatusClosedMarket        Status = "closed_market"
	StatusClosedForceMarket   Status = "closed_force_market"
	StatusClosedIOC           Status = "closed_ioc"
	StatusNotFlatAfterRetries Status = "not_flat_after_retries"
)

const (
	ActionCancelAll        = "cancel_all"
	ActionReduceOnlyMarket = "reduce_only_market"
	ActionForceMarket      = "force_market"
	ActionIOCCross         = "ioc_cross"
)

type Gateway interface {
	CancelAllOrders(ctx context.Context, symbol string) error
	FetchPosition(ctx context.Context, symbol string) (models.PositionSnapshot, error)
	SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
	FetchTicker(ctx context.Context, symbol string) (models.Ticker, error)
	FetchInstrumentPrecision(ctx context.Context, symbol string) (models.InstrumentPrecision, error)
}

type EventSink interface {
	Emit(ctx context.Context, ev models.Event)
}

type Config struct {
	MaxRounds   int           // полных повторов лестницы, 5
	SettleDelay time.Duration // пауза после каждого шага, 800ms
	IOCCrossPct float64       // 0.40 => на 40% через лучшую цену
}

func DefaultConfig() Config {
	return Config{MaxRounds: 5, SettleDelay: 800 * time.Millisecond, IOCCrossPct: 0.40}
}

type Report struct {
	Status Status
	Log    []models.EscalationAttempt
	Final  models.PositionSnapshot
}

type Escalator struct {
	gw   Gateway
	cfg  Config
	log  *zap.Logger
	sink EventSink
}

func New(gw Gateway, cfg Config, log *zap.Logger, sink EventSink) *Escalator {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 1
	}
	return &Escalator{gw: gw, cfg: cfg, log: log, sink: sink}
}

type step struct {
	stage  int
	action string
	status Status
}

var ladder = []step{
	{1, ActionCancelAll, ""},
	{2, ActionReduceOnlyMarket, StatusClosedMarket},
	{3, ActionForceMarket, StatusClosedForceMarket},
	{4, ActionIOCCross, StatusClosedIOC},
}

// Flatten гонит лестницу, пока позиция не станет нулевой или не кончатся раунды.
// Лог возвращается всегда; ErrNotFlatAfterRetries: сигнал для ручного вмешательства.
func (f *Escalator) Flatten(ctx context.Context, symbol string) (Report, error) {
	var (
		rep    Report
		snap   models.PositionSnapshot
		known  bool
		closer Status
	)

	for round := 1; round <= f.cfg.MaxRounds; round++ {
		for _, st := range ladder {
			if err := ctx.Err(); err != nil {
				return f.finish(ctx, symbol, rep, "", err)
			}

			att := models.EscalationAttempt{Round: round, Stage: st.stage, Action: st.action, At: time.Now().UTC()}
			var sent bool
			att.Result, sent, att.Err = f.act(ctx, symbol, st.action, snap, known)
			actErr := att.Err

			_ = helper.Sleep(ctx, f.cfg.SettleDelay)
			fresh, err := f.gw.FetchPosition(ctx, symbol)
			if err != nil {
				// снимок до шага больше не верен: следующий шаг перечитает позицию сам
				known = false
				att.Err = errors.Join(att.Err, fmt.Errorf("snapshot: %w", err))
				att.Result += "; position unknown"
			} else {
				snap, known = fresh, true
				if fresh.IsFlat() {
					att.Result += "; flat"
				} else {
					att.Result += fmt.Sprintf("; open %s %.8f", fresh.Side, fresh.Size)
				}
			}
			rep.Log = append(rep.Log, att)
			f.emitStep(ctx, symbol, att)

			// флэт приписываем последнему успешно отправленному закрывающему шагу
			if st.status != "" && sent && actErr == nil {
				closer = st.status
			}
			if err == nil && snap.IsFlat() {
				rep.Final = snap
				status := closer
				if status == "" {
					status = StatusAlreadyFlat
				}
				return f.finish(ctx, symbol, rep, status, nil)
			}
		}
	}

	rep.Final = snap
	return f.finish(ctx, symbol, rep, StatusNotFlatAfterRetries,
		models.Wrap(models.ErrNotFlatAfterRetries, "flatten",
			fmt.Errorf("%s still open after %d rounds: size=%.8f", symbol, f.cfg.MaxRounds, snap.Size)))
}

// act выполняет один шаг. sent: закрывающий ордер принят биржей.
func (f *Escalator) act(ctx context.Context, symbol, action string, snap models.PositionSnapshot, known bool) (string, bool, error) {
	if action == ActionCancelAll {
		if err := f.gw.CancelAllOrders(ctx, symbol); err != nil {
			return "cancel failed", false, err
		}
		return "cancelled", false, nil
	}
	if !known {
		fresh, err := f.gw.FetchPosition(ctx, symbol)
		if err != nil {
			return "skipped", false, fmt.Errorf("position size unknown: %w", err)
		}
		snap = fresh
		if snap.IsFlat() {
			return "already flat", false, nil
		}
	}
	if snap.Size <= 0 || snap.Side == models.SideNone {
		return "skipped", false, errors.New("position size unknown")
	}

	req := models.OrderRequest{
		Symbol:      symbol,
		Side:        snap.Side.Opposite().OrderSide(),
		Type:        models.OrderTypeMarket,
		Qty:         snap.Size,
		TimeInForce: models.TimeInForceIOC,
		ClientID:    uuid.NewString(),
	}
	switch action {
	case ActionReduceOnlyMarket:
		req.ReduceOnly = true
	case ActionForceMarket:
	case ActionIOCCross:
		px, err := f.crossPrice(ctx, symbol, req.Side)
		if err != nil {
			return "no price", false, err
		}
		req.Type = models.OrderTypeLimit
		req.Price = px
	}

	res, err := f.gw.SubmitOrder(ctx, req)
	if err != nil {
		return "submit failed", false, err
	}
	if !res.Accepted {
		return fmt.Sprintf("rejected %s: %s", res.Reject, res.Reason), false, fmt.Errorf("order rejected: %s", res.Reason)
	}
	return fmt.Sprintf("accepted %s %s %.8f", req.Side, req.Type, req.Qty), true, nil
}

// crossPrice: IOC-цена на IOCCrossPct через лучшую встречную.
func (f *Escalator) crossPrice(ctx context.Context, symbol string, side models.OrderSide) (float64, error) {
	t, err := f.gw.FetchTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	prec, err := f.gw.FetchInstrumentPrecision(ctx, symbol)
	if err != nil {
		f.log.Warn("precision unavailable for ioc cross", zap.String("symbol", symbol), zap.Error(err))
	}

	if side == models.OrderSideBuy {
		ref := t.Ask
		if ref <= 0 {
			ref = t.Last
		}
		if ref <= 0 {
			return 0, fmt.Errorf("no ask/last price")
		}
		px := decimal.NewFromFloat(ref).Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(f.cfg.IOCCrossPct)))
		return helper.CeilToStep(px.InexactFloat64(), prec.TickSize), nil
	}
	ref := t.Bid
	if ref <= 0 {
		ref = t.Last
	}
	if ref <= 0 {
		return 0, fmt.Errorf("no bid/last price")
	}
	raw := decimal.NewFromFloat(ref).Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(f.cfg.IOCCrossPct)))
	px := helper.FloorToStep(raw.InexactFloat64(), prec.TickSize)
	if px <= 0 {
		px = prec.TickSize
	}
	return px, nil
}

func (f *Escalator) emitStep(ctx context.Context, symbol string, a models.EscalationAttempt) {
	fields := []zap.Field{
		zap.String("symbol", symbol),
		zap.Int("round", a.Round),
		zap.Int("stage", a.Stage),
		zap.String("action", a.Action),
		zap.String("result", a.Result),
	}
	if a.Err != nil {
		f.log.Warn("flatten step", append(fields, zap.Error(a.Err))...)
	} else {
		f.log.Info("flatten step", fields...)
	}
	if f.sink == nil {
		return
	}
	payload := map[string]any{"round": a.Round, "stage": a.Stage, "action": a.Action, "result": a.Result}
	if a.Err != nil {
		payload["error"] = a.Err.Error()
	}
	f.sink.Emit(ctx, models.Event{Kind: "flatten.step", Time: a.At, Symbol: symbol, Payload: payload})
}

func (f *Escalator) finish(ctx context.Context, symbol string, rep Report, status Status, err error) (Report, error) {
	rep.Status = status
	if status != "" {
		metrics.FlattenTotal.WithLabelValues(string(status)).Inc()
	}
	if status == StatusNotFlatAfterRetries {
		f.log.Error("NOT FLAT AFTER RETRIES, manual intervention required",
			zap.String("symbol", symbol), zap.Float64("size", rep.Final.Size), zap.Int("steps", len(rep.Log)))
	} else if status != "" {
		f.log.Info("flatten done", zap.String("symbol", symbol), zap.String("status", string(status)), zap.Int("steps", len(rep.Log)))
	}
	if f.sink != nil {
		payload := map[string]any{"status": string(status), "steps": len(rep.Log)}
		if err != nil {
			payload["error"] = err.Error()
		}
		f.sink.Emit(ctx, models.Event{Kind: "flatten.done", Time: time.Now().UTC(), Symbol: symbol, Payload: payload})
	}
	return rep, err
}
