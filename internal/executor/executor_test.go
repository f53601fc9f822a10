package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"futures_bot/internal/exchange/exchangetest"
	"futures_bot/internal/models"
)

var prec = models.InstrumentPrecision{TickSize: 0.1, QtyStep: 0.001, MinQty: 0.001, MinNotional: 5}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 0
	cfg.RetryDelay = 0
	cfg.MaxPolls = 5
	return cfg
}

func longOrder() models.SizedOrder {
	return models.SizedOrder{
		Side:        models.SideLong,
		EntryPrice:  100,
		Quantity:    0.5,
		StopPrice:   99,
		TargetPrice: 102.5,
	}
}

func fillOnAccept(avg float64) func(g *exchangetest.Gateway, req models.OrderRequest, res models.OrderResult) {
	return func(g *exchangetest.Gateway, req models.OrderRequest, res models.OrderResult) {
		if !res.Accepted {
			return
		}
		side := models.SideLong
		if req.Side == models.OrderSideSell {
			side = models.SideShort
		}
		g.SetPosition(models.PositionSnapshot{Side: side, Size: req.Qty, AvgEntryPrice: avg})
	}
}

func TestExecuteScenarioD(t *testing.T) {
	gw := &exchangetest.Gateway{
		SubmitFn: func(n int, req models.OrderRequest) (models.OrderResult, error) {
			if n < 3 {
				return models.OrderResult{Reject: models.RejectPrecision, Reason: "110003"}, nil
			}
			return models.OrderResult{Accepted: true, OrderID: "ord-4"}, nil
		},
		OnSubmit: fillOnAccept(100.3),
	}
	sink := &exchangetest.Sink{}
	ex := New(gw, testConfig(), zaptest.NewLogger(t), sink)

	res, err := ex.Execute(context.Background(), "BTCUSDT", longOrder(), prec)
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Contains(t, res.Transitions, StateFilled)
	require.Len(t, res.Attempts, 4)
	require.Len(t, gw.Submitted, 4)

	// одна цена на тик выше предыдущей
	prices := []float64{100, 100.1, 100.2, 100.3}
	for i, a := range res.Attempts {
		assert.InDelta(t, prices[i], a.Price, 1e-9, "attempt %d", i+1)
		assert.Equal(t, models.TimeInForceIOC, gw.Submitted[i].TimeInForce)
		assert.NotEmpty(t, gw.Submitted[i].ClientID)
	}
	assert.Equal(t, "initial", res.Attempts[0].Stage)
	assert.Equal(t, "nudge", res.Attempts[3].Stage)
	assert.NotEqual(t, gw.Submitted[0].ClientID, gw.Submitted[1].ClientID)

	assert.Equal(t, 3, countState(res.Transitions, StateRejected))
	assert.Equal(t, 4, countState(res.Transitions, StateSubmitted))
	assert.NotEmpty(t, sink.Events)
}

func TestExecuteReanchorsStopsOnAvgPrice(t *testing.T) {
	gw := &exchangetest.Gateway{OnSubmit: fillOnAccept(101)}
	ex := New(gw, testConfig(), zaptest.NewLogger(t), nil)

	res, err := ex.Execute(context.Background(), "BTCUSDT", longOrder(), prec)
	require.NoError(t, err)

	assert.Equal(t, 101.0, res.AvgPrice)
	assert.InDelta(t, 100.0, res.Stop, 1e-9)
	assert.InDelta(t, 103.5, res.Target, 1e-9)
	require.Len(t, gw.Stops, 1)
	assert.Equal(t, [2]float64{res.Stop, res.Target}, gw.Stops[0])
	assert.Equal(t, []State{StatePlanned, StateSubmitted, StateFilled, StateStopsAttached, StateDone}, res.Transitions)
}

func TestExecuteFillTimeout(t *testing.T) {
	gw := &exchangetest.Gateway{}
	ex := New(gw, testConfig(), zaptest.NewLogger(t), nil)

	res, err := ex.Execute(context.Background(), "BTCUSDT", longOrder(), prec)
	require.ErrorIs(t, err, models.ErrFillTimeout)
	assert.Equal(t, StateAborted, res.State)
	assert.Len(t, gw.Submitted, 1, "no automatic resubmission after timeout")
	assert.Equal(t, 5, gw.CallCount("fetch_position"))
	assert.Zero(t, gw.CallCount("attach_stops"))
}

func TestExecuteWrongSideIsNotAFill(t *testing.T) {
	gw := &exchangetest.Gateway{
		Positions: []models.PositionSnapshot{{Side: models.SideShort, Size: 1, AvgEntryPrice: 100}},
	}
	ex := New(gw, testConfig(), zaptest.NewLogger(t), nil)

	_, err := ex.Execute(context.Background(), "BTCUSDT", longOrder(), prec)
	require.ErrorIs(t, err, models.ErrFillTimeout)
}

func TestExecuteNonPrecisionRejectAborts(t *testing.T) {
	gw := &exchangetest.Gateway{
		SubmitFn: func(int, models.OrderRequest) (models.OrderResult, error) {
			return models.OrderResult{Reject: models.RejectOther, Reason: "insufficient balance"}, nil
		},
	}
	ex := New(gw, testConfig(), zaptest.NewLogger(t), nil)

	res, err := ex.Execute(context.Background(), "BTCUSDT", longOrder(), prec)
	require.ErrorIs(t, err, models.ErrOrderRejected)
	assert.Equal(t, StateAborted, res.State)
	assert.Len(t, res.Attempts, 1)
}

func TestExecuteTransportErrorAborts(t *testing.T) {
	boom := errors.New("connection reset")
	gw := &exchangetest.Gateway{
		SubmitFn: func(int, models.OrderRequest) (models.OrderResult, error) {
			return models.OrderResult{}, boom
		},
	}
	ex := New(gw, testConfig(), zaptest.NewLogger(t), nil)

	res, err := ex.Execute(context.Background(), "BTCUSDT", longOrder(), prec)
	require.ErrorIs(t, err, models.ErrExchange)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateAborted, res.State)
}

func TestExecutePrecisionExhausted(t *testing.T) {
	gw := &exchangetest.Gateway{
		SubmitFn: func(int, models.OrderRequest) (models.OrderResult, error) {
			return models.OrderResult{Reject: models.RejectPrecision}, nil
		},
	}
	cfg := testConfig()
	cfg.MaxNudges = 2
	cfg.MaxWidened = 2
	ex := New(gw, cfg, zaptest.NewLogger(t), nil)

	res, err := ex.Execute(context.Background(), "BTCUSDT", longOrder(), prec)
	require.ErrorIs(t, err, models.ErrPrecisionRejected)
	assert.Equal(t, StateAborted, res.State)
	require.Len(t, res.Attempts, 5)
	assert.Equal(t, "widen", res.Attempts[3].Stage)
	assert.InDelta(t, 110.0, res.Attempts[3].Price, 1e-9)
	assert.InDelta(t, 121.0, res.Attempts[4].Price, 1e-9)
}

func TestExecuteMarketEntry(t *testing.T) {
	gw := &exchangetest.Gateway{OnSubmit: fillOnAccept(100)}
	cfg := testConfig()
	cfg.EntryType = models.OrderTypeMarket
	ex := New(gw, cfg, zaptest.NewLogger(t), nil)

	_, err := ex.Execute(context.Background(), "BTCUSDT", longOrder(), prec)
	require.NoError(t, err)
	require.Len(t, gw.Submitted, 1)
	assert.Equal(t, models.OrderTypeMarket, gw.Submitted[0].Type)
	assert.Zero(t, gw.Submitted[0].Price)
}

func TestExecuteStopsFailureLeavesExposure(t *testing.T) {
	gw := &exchangetest.Gateway{OnSubmit: fillOnAccept(100), AttachErr: errors.New("10001 params error")}
	ex := New(gw, testConfig(), zaptest.NewLogger(t), nil)

	res, err := ex.Execute(context.Background(), "BTCUSDT", longOrder(), prec)
	require.ErrorIs(t, err, models.ErrExchange)
	assert.True(t, res.Exposed())
	assert.Equal(t, 3, gw.CallCount("attach_stops"))
}

func TestReanchorStopsDirectionalSanity(t *testing.T) {
	short := models.SizedOrder{Side: models.SideShort, EntryPrice: 100, Quantity: 1, StopPrice: 100.04, TargetPrice: 99.96}
	stop, target := ReanchorStops(short, 100, 0.1)
	assert.Greater(t, stop, 100.0)
	assert.Less(t, target, 100.0)
	assert.Greater(t, target, 0.0)

	long := models.SizedOrder{Side: models.SideLong, EntryPrice: 100, Quantity: 1, StopPrice: 99.98, TargetPrice: 100.02}
	stop, target = ReanchorStops(long, 250.05, 0.1)
	assert.Less(t, stop, 250.05)
	assert.Greater(t, target, 250.05)
}

func countState(ss []State, s State) int {
	n := 0
	for _, x := range ss {
		if x == s {
			n++
		}
	}
	return n
}
