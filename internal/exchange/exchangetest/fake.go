// Package exchangetest содержит скриптуемую биржу для тестов.
package exchangetest

import (
	"context"
	"sync"

	"futures_bot/internal/models"
)

// Gateway реализует exchange.Gateway поверх заготовленных ответов.
// Positions отдаются по очереди, последний повторяется.
type Gateway struct {
	mu sync.Mutex

	Candles    []models.Candle
	CandlesErr error
	Precision  models.InstrumentPrecision
	Positions  []models.PositionSnapshot
	PosErr     []error
	OpenOrders []string
	OrdersErr  error
	Ticker     models.Ticker
	TickerErr  error
	Equity     float64
	EquityErr  error
	CancelErr  error
	AttachErr  error

	// SubmitFn решает судьбу ордера; n: номер вызова с нуля.
	SubmitFn func(n int, req models.OrderRequest) (models.OrderResult, error)
	// OnSubmit вызывается после SubmitFn, например чтобы подменить позицию.
	OnSubmit func(g *Gateway, req models.OrderRequest, res models.OrderResult)

	Calls     []string
	Submitted []models.OrderRequest
	Stops     [][2]float64
	posCalls  int
}

func (g *Gateway) record(call string) {
	g.Calls = append(g.Calls, call)
}

func (g *Gateway) FetchCandles(_ context.Context, _, _ string, lookback int) ([]models.Candle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("fetch_candles")
	if g.CandlesErr != nil {
		return nil, g.CandlesErr
	}
	c := g.Candles
	if lookback > 0 && len(c) > lookback {
		c = c[len(c)-lookback:]
	}
	return append([]models.Candle(nil), c...), nil
}

func (g *Gateway) FetchInstrumentPrecision(context.Context, string) (models.InstrumentPrecision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("fetch_precision")
	return g.Precision, nil
}

func (g *Gateway) FetchPosition(_ context.Context, symbol string) (models.PositionSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("fetch_position")
	i := g.posCalls
	g.posCalls++
	if i < len(g.PosErr) && g.PosErr[i] != nil {
		return models.PositionSnapshot{}, g.PosErr[i]
	}
	if len(g.Positions) == 0 {
		return models.PositionSnapshot{Symbol: symbol}, nil
	}
	if i >= len(g.Positions) {
		i = len(g.Positions) - 1
	}
	p := g.Positions[i]
	p.Symbol = symbol
	return p, nil
}

// SetPosition заменяет очередь позиций одной позицией начиная со следующего вызова.
func (g *Gateway) SetPosition(p models.PositionSnapshot) {
	g.Positions = append(g.Positions[:min(g.posCalls, len(g.Positions))], p)
}

func (g *Gateway) FetchOpenOrders(context.Context, string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("fetch_open_orders")
	return g.OpenOrders, g.OrdersErr
}

func (g *Gateway) SubmitOrder(_ context.Context, req models.OrderRequest) (models.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("submit_order")
	n := len(g.Submitted)
	g.Submitted = append(g.Submitted, req)

	res := models.OrderResult{Accepted: true, OrderID: req.ClientID}
	var err error
	if g.SubmitFn != nil {
		res, err = g.SubmitFn(n, req)
	}
	if g.OnSubmit != nil && err == nil {
		g.OnSubmit(g, req, res)
	}
	return res, err
}

func (g *Gateway) CancelAllOrders(context.Context, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("cancel_all")
	return g.CancelErr
}

func (g *Gateway) AttachStops(_ context.Context, _ string, stop, target float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("attach_stops")
	g.Stops = append(g.Stops, [2]float64{stop, target})
	return g.AttachErr
}

func (g *Gateway) FetchTicker(context.Context, string) (models.Ticker, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("fetch_ticker")
	return g.Ticker, g.TickerErr
}

func (g *Gateway) FetchEquity(context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("fetch_equity")
	return g.Equity, g.EquityErr
}

// CallCount: сколько раз вызывали метод.
func (g *Gateway) CallCount(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.Calls {
		if c == call {
			n++
		}
	}
	return n
}

// Sink собирает события журнала.
type Sink struct {
	mu     sync.Mutex
	Events []models.Event
}

func (s *Sink) Emit(_ context.Context, ev models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
}

func (s *Sink) Kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.Events))
	for _, e := range s.Events {
		out = append(out, e.Kind)
	}
	return out
}
