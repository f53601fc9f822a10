package flatten

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

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	return cfg
}

func open(side models.Side, size float64) models.PositionSnapshot {
	return models.PositionSnapshot{Side: side, Size: size, AvgEntryPrice: 100}
}

func TestFlattenScenarioC(t *testing.T) {
	gw := &exchangetest.Gateway{
		Positions: []models.PositionSnapshot{open(models.SideLong, 5), {}},
	}
	sink := &exchangetest.Sink{}
	esc := New(gw, testConfig(), zaptest.NewLogger(t), sink)

	rep, err := esc.Flatten(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, StatusClosedMarket, rep.Status)

	require.Len(t, rep.Log, 2)
	assert.Equal(t, ActionCancelAll, rep.Log[0].Action)
	assert.Equal(t, ActionReduceOnlyMarket, rep.Log[1].Action)

	require.Len(t, gw.Submitted, 1)
	req := gw.Submitted[0]
	assert.True(t, req.ReduceOnly)
	assert.Equal(t, models.OrderSideSell, req.Side)
	assert.Equal(t, models.OrderTypeMarket, req.Type)
	assert.Equal(t, 5.0, req.Qty)
	assert.Zero(t, gw.CallCount("fetch_ticker"))

	assert.Equal(t, []string{"flatten.step", "flatten.step", "flatten.done"}, sink.Kinds())
}

func TestFlattenAlreadyFlatStillCancels(t *testing.T) {
	gw := &exchangetest.Gateway{}
	esc := New(gw, testConfig(), zaptest.NewLogger(t), nil)

	rep, err := esc.Flatten(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyFlat, rep.Status)
	require.Len(t, rep.Log, 1)
	assert.Equal(t, 1, gw.CallCount("cancel_all"))
	assert.Empty(t, gw.Submitted)
}

func TestFlattenStopsAtStepK(t *testing.T) {
	cases := []struct {
		name     string
		flatAt   int // номер шага, после которого позиция нулевая
		status   Status
		lastStep string
	}{
		{"reduce only", 2, StatusClosedMarket, ActionReduceOnlyMarket},
		{"force market", 3, StatusClosedForceMarket, ActionForceMarket},
		{"ioc cross", 4, StatusClosedIOC, ActionIOCCross},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			positions := make([]models.PositionSnapshot, 0, tc.flatAt)
			for i := 1; i < tc.flatAt; i++ {
				positions = append(positions, open(models.SideShort, 2))
			}
			positions = append(positions, models.PositionSnapshot{})

			gw := &exchangetest.Gateway{
				Positions: positions,
				Ticker:    models.Ticker{Bid: 99.9, Ask: 100.1, Last: 100},
				Precision: models.InstrumentPrecision{TickSize: 0.1},
			}
			rep, err := New(gw, testConfig(), zaptest.NewLogger(t), nil).Flatten(context.Background(), "ETHUSDT")
			require.NoError(t, err)

			assert.Equal(t, tc.status, rep.Status)
			require.Len(t, rep.Log, tc.flatAt)
			assert.Equal(t, tc.lastStep, rep.Log[len(rep.Log)-1].Action)
			assert.Len(t, gw.Submitted, tc.flatAt-1)
			for _, req := range gw.Submitted {
				assert.Equal(t, models.OrderSideBuy, req.Side)
				assert.Equal(t, 2.0, req.Qty)
			}
		})
	}
}

func TestFlattenIOCCrossPrice(t *testing.T) {
	gw := &exchangetest.Gateway{
		Positions: []models.PositionSnapshot{open(models.SideLong, 1), open(models.SideLong, 1), open(models.SideLong, 1), {}},
		Ticker:    models.Ticker{Bid: 200, Ask: 200.5},
		Precision: models.InstrumentPrecision{TickSize: 0.01},
	}
	rep, err := New(gw, testConfig(), zaptest.NewLogger(t), nil).Flatten(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, StatusClosedIOC, rep.Status)

	require.Len(t, gw.Submitted, 3)
	ioc := gw.Submitted[2]
	assert.Equal(t, models.OrderTypeLimit, ioc.Type)
	assert.Equal(t, models.TimeInForceIOC, ioc.TimeInForce)
	assert.False(t, ioc.ReduceOnly)
	assert.InDelta(t, 120.0, ioc.Price, 1e-9)
	assert.False(t, gw.Submitted[1].ReduceOnly)
}

func TestFlattenNotFlatAfterRetries(t *testing.T) {
	gw := &exchangetest.Gateway{
		Positions: []models.PositionSnapshot{open(models.SideLong, 3)},
		Ticker:    models.Ticker{Bid: 100, Ask: 100.1},
		SubmitFn: func(int, models.OrderRequest) (models.OrderResult, error) {
			return models.OrderResult{Reject: models.RejectReduceOnly, Reason: "110017"}, nil
		},
	}
	cfg := testConfig()
	cfg.MaxRounds = 3
	rep, err := New(gw, cfg, zaptest.NewLogger(t), nil).Flatten(context.Background(), "BTCUSDT")

	require.ErrorIs(t, err, models.ErrNotFlatAfterRetries)
	assert.Equal(t, StatusNotFlatAfterRetries, rep.Status)
	assert.Len(t, rep.Log, 3*4)
	assert.Equal(t, 3, gw.CallCount("cancel_all"))
	for _, a := range rep.Log[1:4] {
		assert.Error(t, a.Err)
	}
}

func TestFlattenSnapshotErrorKeepsGoing(t *testing.T) {
	gw := &exchangetest.Gateway{
		Positions: []models.PositionSnapshot{{}, {}, {}},
		PosErr:    []error{errors.New("timeout"), nil},
	}
	rep, err := New(gw, testConfig(), zaptest.NewLogger(t), nil).Flatten(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	// первый снимок упал: reduce-only перечитывает позицию сам и видит ноль
	require.Len(t, rep.Log, 2)
	assert.Error(t, rep.Log[0].Err)
	assert.Equal(t, "already flat; flat", rep.Log[1].Result)
	assert.Equal(t, StatusAlreadyFlat, rep.Status)
	assert.Empty(t, gw.Submitted)
}

func TestFlattenLostSnapshotAfterReduceOnlyIsRefetched(t *testing.T) {
	gw := &exchangetest.Gateway{
		// 0: после cancel_all, 1: после reduce-only (ошибка), 2: перечитали перед force market
		Positions: []models.PositionSnapshot{open(models.SideLong, 5), {}, {}},
		PosErr:    []error{nil, errors.New("read timeout")},
	}
	rep, err := New(gw, testConfig(), zaptest.NewLogger(t), nil).Flatten(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	require.Len(t, gw.Submitted, 1)
	assert.True(t, gw.Submitted[0].ReduceOnly)
	assert.Equal(t, 5.0, gw.Submitted[0].Qty)

	assert.Equal(t, StatusClosedMarket, rep.Status)
	require.Len(t, rep.Log, 3)
	assert.Equal(t, ActionForceMarket, rep.Log[2].Action)
	assert.Equal(t, "already flat; flat", rep.Log[2].Result)
}

func TestFlattenSkipsStepWhenPositionUnreadable(t *testing.T) {
	gw := &exchangetest.Gateway{
		Positions: []models.PositionSnapshot{open(models.SideShort, 2), {}, {}, {}},
		PosErr:    []error{nil, errors.New("down"), errors.New("down")},
	}
	rep, err := New(gw, testConfig(), zaptest.NewLogger(t), nil).Flatten(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	// после reduce-only снимок потерян, перечитать перед force market тоже не вышло
	require.Len(t, gw.Submitted, 1)
	assert.True(t, gw.Submitted[0].ReduceOnly)
	require.Len(t, rep.Log, 3)
	assert.Equal(t, "skipped; flat", rep.Log[2].Result)
	assert.Error(t, rep.Log[2].Err)
	assert.Equal(t, StatusClosedMarket, rep.Status)
}
