package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"futures_bot/internal/exchange/exchangetest"
	"futures_bot/internal/models"
)

type fakeArchive struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (a *fakeArchive) Archive(_ context.Context, symbol, _ string, candles []models.Candle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calls == nil {
		a.calls = map[string]int{}
	}
	a.calls[symbol] += len(candles)
	return a.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *fakeNotifier) Notify(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
}

func candles(n int) []models.Candle {
	t0 := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{OpenTime: t0.Add(time.Duration(i) * 5 * time.Minute), Open: 1, High: 1, Low: 1, Close: 1}
	}
	return out
}

func TestWarmupSeedsArchive(t *testing.T) {
	gw := &exchangetest.Gateway{
		Candles:   candles(50),
		Precision: models.InstrumentPrecision{TickSize: 0.1, QtyStep: 0.001},
	}
	arch, nt := &fakeArchive{}, &fakeNotifier{}
	w := NewWarmuper(gw, arch, nt, Config{Interval: "5", Lookback: 200}, zaptest.NewLogger(t))

	reps, err := w.Warmup(context.Background(), []string{"BTCUSDT"})
	require.NoError(t, err)
	require.Len(t, reps, 1)
	assert.Equal(t, 50, reps[0].Candles)
	assert.Equal(t, 0.1, reps[0].Precision.TickSize)
	assert.Equal(t, 50, arch.calls["BTCUSDT"])
	assert.Empty(t, nt.msgs)
}

func TestWarmupReportsInheritedPosition(t *testing.T) {
	gw := &exchangetest.Gateway{
		Candles:   candles(5),
		Positions: []models.PositionSnapshot{{Side: models.SideShort, Size: 0.2, AvgEntryPrice: 64000}},
	}
	nt := &fakeNotifier{}
	w := NewWarmuper(gw, nil, nt, Config{Interval: "5", Lookback: 200}, zaptest.NewLogger(t))

	reps, err := w.Warmup(context.Background(), []string{"BTCUSDT"})
	require.NoError(t, err)
	assert.False(t, reps[0].Position.IsFlat())
	require.Len(t, nt.msgs, 1)
	assert.Contains(t, nt.msgs[0], "SHORT 0.2")
}

func TestWarmupArchiveErrorIsNotFatal(t *testing.T) {
	gw := &exchangetest.Gateway{Candles: candles(5)}
	w := NewWarmuper(gw, &fakeArchive{err: errors.New("clickhouse down")}, nil, Config{Interval: "5"}, zaptest.NewLogger(t))

	_, err := w.Warmup(context.Background(), []string{"BTCUSDT"})
	assert.NoError(t, err)
}

func TestWarmupExchangeError(t *testing.T) {
	gw := &exchangetest.Gateway{CandlesErr: errors.New("503")}
	nt := &fakeNotifier{}
	w := NewWarmuper(gw, nil, nt, Config{Interval: "5"}, zaptest.NewLogger(t))

	_, err := w.Warmup(context.Background(), []string{"BTCUSDT", "ETHUSDT"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warmup candles")
	require.Len(t, nt.msgs, 1)
	assert.Contains(t, nt.msgs[0], "warmup finished with error")
	assert.Zero(t, gw.CallCount("fetch_position"))
}

func TestWarmupNoSymbols(t *testing.T) {
	w := NewWarmuper(&exchangetest.Gateway{}, nil, nil, Config{}, zaptest.NewLogger(t))
	reps, err := w.Warmup(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, reps)
}
