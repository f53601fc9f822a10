// Package executor ведёт вход в позицию: отправка, ожидание исполнения, постановка SL/TP.
package executor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures_bot/internal/helper"
	"futures_bot/internal/metrics"
	"futures_bot/internal/models"
	"futures_bot/internal/planner"
)

type State string

const (
	StatePlanned       State = "PLANNED"
	StateSubmitted     State = "SUBMITTED"
	StateFilled        State = "FILLED"
	StateRejected      State = "REJECTED"
	StateStopsAttached State = "STOPS_ATTACHED"
	StateDone          State = "DONE"
	StateAborted       State = "ABORTED"
)

// Gateway: часть биржи, нужная исполнителю.
type Gateway interface {
	SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
	FetchPosition(ctx context.Context, symbol string) (models.PositionSnapshot, error)
	AttachStops(ctx context.Context, symbol string, stop, target float64) error
}

type EventSink interface {
	Emit(ctx context.Context, ev models.Event)
}

type Config struct {
	EntryType    models.OrderType // Market или Limit (IOC)
	MaxNudges    int              // попыток со сдвигом на тик
	MaxWidened   int              // попыток с геометрически расширенной ценой
	WidenPct     float64          // 0.1 => каждая попытка на 10% дальше от книги
	PollInterval time.Duration
	MaxPolls     int
	RetryDelay   time.Duration
	StopRetries  int
}

func DefaultConfig() Config {
	return Config{
		EntryType:    models.OrderTypeLimit,
		MaxNudges:    6,
		MaxWidened:   6,
		WidenPct:     0.1,
		PollInterval: 250 * time.Millisecond,
		MaxPolls:     40,
		RetryDelay:   300 * time.Millisecond,
		StopRetries:  3,
	}
}

type Attempt struct {
	N        int
	Stage    string // initial | nudge | widen
	Type     models.OrderType
	Price    float64
	ClientID string
	Result   models.OrderResult
	Err      error
}

type Result struct {
	State       State
	Attempts    []Attempt
	Transitions []State
	AvgPrice    float64
	FilledQty   float64
	Stop        float64
	Target      float64
}

// Exposed: позиция открыта, но исполнение не дошло до DONE.
func (r Result) Exposed() bool { return r.FilledQty > 0 && r.State != StateDone }

type Executor struct {
	gw   Gateway
	cfg  Config
	log  *zap.Logger
	sink EventSink
}

func New(gw Gateway, cfg Config, log *zap.Logger, sink EventSink) *Executor {
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 1
	}
	if cfg.StopRetries <= 0 {
		cfg.StopRetries = 1
	}
	if cfg.EntryType == "" {
		cfg.EntryType = models.OrderTypeLimit
	}
	return &Executor{gw: gw, cfg: cfg, log: log, sink: sink}
}

type run struct {
	e      *Executor
	symbol string
	order  models.SizedOrder
	res    Result
}

func (r *run) to(ctx context.Context, s State, payload map[string]any) {
	from := StatePlanned
	if n := len(r.res.Transitions); n > 0 {
		from = r.res.Transitions[n-1]
	}
	r.res.Transitions = append(r.res.Transitions, s)
	r.res.State = s

	if payload == nil {
		payload = map[string]any{}
	}
	payload["from"] = string(from)
	payload["to"] = string(s)
	r.e.emit(ctx, r.symbol, "exec.transition", payload)
}

func (e *Executor) emit(ctx context.Context, symbol, kind string, payload map[string]any) {
	if e.sink == nil {
		return
	}
	e.sink.Emit(ctx, models.Event{Kind: kind, Time: time.Now().UTC(), Symbol: symbol, Payload: payload})
}

// Execute проводит SizedOrder через автомат состояний.
// order.EntryPrice это цена сигнала, от неё берутся расстояния до SL/TP для переноса на среднюю цену входа.
func (e *Executor) Execute(ctx context.Context, symbol string, order models.SizedOrder, prec models.InstrumentPrecision) (Result, error) {
	r := &run{e: e, symbol: symbol, order: order}
	defer func() {
		metrics.ExecutionsTotal.WithLabelValues(string(r.res.State)).Inc()
	}()

	if order.Quantity <= 0 || order.EntryPrice <= 0 {
		r.to(ctx, StateAborted, map[string]any{"reason": "invalid order"})
		return r.res, fmt.Errorf("invalid order: qty=%.8f entry=%.8f", order.Quantity, order.EntryPrice)
	}

	r.to(ctx, StatePlanned, map[string]any{
		"side": string(order.Side), "qty": order.Quantity, "entry": order.EntryPrice,
		"stop": order.StopPrice, "target": order.TargetPrice,
	})

	if err := r.submit(ctx, prec); err != nil {
		return r.res, err
	}
	if err := r.waitFill(ctx); err != nil {
		return r.res, err
	}
	if err := r.attachStops(ctx, prec); err != nil {
		return r.res, err
	}

	r.to(ctx, StateDone, map[string]any{"avg": r.res.AvgPrice, "qty": r.res.FilledQty})
	e.log.Info("entry done",
		zap.String("symbol", symbol),
		zap.String("side", string(order.Side)),
		zap.Float64("avg", r.res.AvgPrice),
		zap.Float64("qty", r.res.FilledQty),
		zap.Float64("sl", r.res.Stop),
		zap.Float64("tp", r.res.Target),
		zap.Int("attempts", len(r.res.Attempts)),
	)
	return r.res, nil
}

// attemptPrice даёт цену k-й попытки. Сначала сигнал, затем по тику, затем геометрически дальше от книги.
func (e *Executor) attemptPrice(k int, side models.Side, base, tick float64) (models.OrderType, string, float64) {
	buy := side == models.SideLong
	switch {
	case k == 0:
		if e.cfg.EntryType == models.OrderTypeMarket {
			return models.OrderTypeMarket, "initial", 0
		}
		if buy {
			return models.OrderTypeLimit, "initial", helper.CeilToStep(base, tick)
		}
		return models.OrderTypeLimit, "initial", helper.FloorToStep(base, tick)

	case k <= e.cfg.MaxNudges:
		shift := decimal.NewFromFloat(tick).Mul(decimal.NewFromInt(int64(k)))
		if buy {
			return models.OrderTypeLimit, "nudge", helper.CeilToStep(decimal.NewFromFloat(base).Add(shift).InexactFloat64(), tick)
		}
		return models.OrderTypeLimit, "nudge", helper.FloorToStep(decimal.NewFromFloat(base).Sub(shift).InexactFloat64(), tick)
	}

	j := decimal.NewFromInt(int64(k - e.cfg.MaxNudges))
	pct := decimal.NewFromFloat(e.cfg.WidenPct)
	if buy {
		px := decimal.NewFromFloat(base).Mul(decimal.NewFromInt(1).Add(pct).Pow(j))
		return models.OrderTypeLimit, "widen", helper.CeilToStep(px.InexactFloat64(), tick)
	}
	px := decimal.NewFromFloat(base).Mul(decimal.NewFromInt(1).Sub(pct).Pow(j))
	return models.OrderTypeLimit, "widen", helper.FloorToStep(px.InexactFloat64(), tick)
}

func (r *run) submit(ctx context.Context, prec models.InstrumentPrecision) error {
	e := r.e
	maxAttempts := 1 + e.cfg.MaxNudges + e.cfg.MaxWidened

	for k := 0; k < maxAttempts; k++ {
		if k > 0 {
			if err := helper.Sleep(ctx, e.cfg.RetryDelay); err != nil {
				r.to(ctx, StateAborted, map[string]any{"reason": "cancelled"})
				return err
			}
			r.to(ctx, StatePlanned, map[string]any{"attempt": k + 1})
		}

		typ, stage, price := e.attemptPrice(k, r.order.Side, r.order.EntryPrice, prec.TickSize)
		if stage == "widen" && price <= 0 {
			break
		}
		req := models.OrderRequest{
			Symbol:      r.symbol,
			Side:        r.order.Side.OrderSide(),
			Type:        typ,
			Qty:         r.order.Quantity,
			Price:       price,
			TimeInForce: models.TimeInForceIOC,
			ClientID:    uuid.NewString(),
		}

		r.to(ctx, StateSubmitted, map[string]any{"attempt": k + 1, "stage": stage, "price": price, "type": string(typ)})
		res, err := e.gw.SubmitOrder(ctx, req)
		att := Attempt{N: k + 1, Stage: stage, Type: typ, Price: price, ClientID: req.ClientID, Result: res, Err: err}
		r.res.Attempts = append(r.res.Attempts, att)

		if err != nil {
			metrics.OrderAttemptsTotal.WithLabelValues("error").Inc()
			e.log.Error("submit order failed", zap.String("symbol", r.symbol), zap.Int("attempt", k+1), zap.Error(err))
			r.to(ctx, StateAborted, map[string]any{"reason": "transport", "error": err.Error()})
			return models.Wrap(models.ErrExchange, "submit entry", err)
		}
		if res.Accepted {
			metrics.OrderAttemptsTotal.WithLabelValues("accepted").Inc()
			return nil
		}

		r.to(ctx, StateRejected, map[string]any{"attempt": k + 1, "reject": string(res.Reject), "reason": res.Reason})
		if res.Reject != models.RejectPrecision {
			metrics.OrderAttemptsTotal.WithLabelValues("rejected").Inc()
			e.log.Warn("entry rejected", zap.String("symbol", r.symbol), zap.String("reason", res.Reason))
			r.to(ctx, StateAborted, map[string]any{"reason": "rejected"})
			return models.Wrap(models.ErrOrderRejected, "submit entry", fmt.Errorf("%s: %s", res.Reject, res.Reason))
		}
		metrics.OrderAttemptsTotal.WithLabelValues("precision").Inc()
		e.log.Info("precision reject, retrying",
			zap.String("symbol", r.symbol), zap.Int("attempt", k+1), zap.String("stage", stage), zap.Float64("price", price))
	}

	r.to(ctx, StateAborted, map[string]any{"reason": "precision retries exhausted"})
	return models.Wrap(models.ErrPrecisionRejected, "submit entry",
		fmt.Errorf("%d attempts rejected", len(r.res.Attempts)))
}

func (r *run) waitFill(ctx context.Context) error {
	e := r.e
	for i := 0; i < e.cfg.MaxPolls; i++ {
		if i > 0 {
			if err := helper.Sleep(ctx, e.cfg.PollInterval); err != nil {
				r.to(ctx, StateAborted, map[string]any{"reason": "cancelled"})
				return err
			}
		}
		snap, err := e.gw.FetchPosition(ctx, r.symbol)
		if err != nil {
			e.log.Warn("position poll failed", zap.String("symbol", r.symbol), zap.Int("poll", i+1), zap.Error(err))
			continue
		}
		if snap.Size > 0 && snap.Side == r.order.Side {
			r.res.FilledQty = snap.Size
			r.res.AvgPrice = snap.AvgEntryPrice
			if r.res.AvgPrice <= 0 {
				r.res.AvgPrice = r.order.EntryPrice
			}
			r.to(ctx, StateFilled, map[string]any{"avg": r.res.AvgPrice, "qty": snap.Size, "polls": i + 1})
			return nil
		}
	}

	r.to(ctx, StateAborted, map[string]any{"reason": "fill timeout", "polls": e.cfg.MaxPolls})
	return models.Wrap(models.ErrFillTimeout, "wait fill",
		fmt.Errorf("no %s position after %d polls", r.order.Side, e.cfg.MaxPolls))
}

// ReanchorStops переносит расстояния сигнала на среднюю цену входа, округляет и проверяет стороны.
func ReanchorStops(order models.SizedOrder, avg, tick float64) (stop, target float64) {
	stopDist := math.Abs(order.EntryPrice - order.StopPrice)
	targetDist := 0.0
	if order.HasTarget() {
		targetDist = math.Abs(order.TargetPrice - order.EntryPrice)
	}
	stop, target = planner.ProtectivePrices(order.Side, avg, stopDist, targetDist, tick)

	step := tick
	if step <= 0 {
		step = avg * 1e-6
	}
	// округление могло прижать уровень к входу: отодвигаем на шаг
	if order.Side == models.SideLong {
		for stop >= avg {
			stop = helper.FloorToStep(stop-step, tick)
		}
		if targetDist > 0 && target == 0 {
			target = helper.CeilToStep(avg+step, tick)
		}
		return stop, target
	}
	for stop <= avg {
		stop = helper.CeilToStep(stop+step, tick)
	}
	if targetDist > 0 && target == 0 {
		target = helper.FloorToStep(avg-step, tick)
		if target <= 0 {
			target = 0
		}
	}
	return stop, target
}

func (r *run) attachStops(ctx context.Context, prec models.InstrumentPrecision) error {
	e := r.e
	r.res.Stop, r.res.Target = ReanchorStops(r.order, r.res.AvgPrice, prec.TickSize)

	var lastErr error
	for i := 0; i < e.cfg.StopRetries; i++ {
		if i > 0 {
			if err := helper.Sleep(ctx, e.cfg.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}
		lastErr = e.gw.AttachStops(ctx, r.symbol, r.res.Stop, r.res.Target)
		if lastErr == nil {
			r.to(ctx, StateStopsAttached, map[string]any{"sl": r.res.Stop, "tp": r.res.Target})
			return nil
		}
		e.log.Warn("attach stops failed", zap.String("symbol", r.symbol), zap.Int("try", i+1), zap.Error(lastErr))
	}

	r.to(ctx, StateAborted, map[string]any{"reason": "stops not attached", "error": lastErr.Error()})
	return models.Wrap(models.ErrExchange, "attach stops", lastErr)
}
