package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures_bot/internal/models"
)

func series(closes ...float64) []models.Candle {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			OpenTime: t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:     c,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   float64(100 + i),
		}
	}
	return out
}

func TestEMASeededWithSMA(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	got := EMA(xs, 3)

	assert.False(t, got[0].Valid)
	assert.False(t, got[1].Valid)
	require.True(t, got[2].Valid)
	assert.InDelta(t, 2.0, got[2].V, 1e-12)
	// alpha = 0.5
	assert.InDelta(t, 3.0, got[3].V, 1e-12)
	assert.InDelta(t, 4.0, got[4].V, 1e-12)
}

func TestShortSeriesUndefined(t *testing.T) {
	xs := []float64{1, 2}
	for _, v := range EMA(xs, 3) {
		assert.False(t, v.Valid)
	}
	for _, v := range SMA(xs, 3) {
		assert.False(t, v.Valid)
	}
	for _, v := range RSI(xs, 2) {
		assert.False(t, v.Valid)
	}
	for _, v := range ATRPct(series(1, 2), 3) {
		assert.False(t, v.Valid)
	}
}

func TestRSIAllGainsIs100(t *testing.T) {
	for _, length := range []int{1, 2, 5, 14} {
		closes := make([]float64, length+10)
		for i := range closes {
			closes[i] = 100 + float64(i)
		}
		got := RSI(closes, length)
		for i := 0; i < length; i++ {
			assert.False(t, got[i].Valid, "length=%d i=%d", length, i)
		}
		for i := length; i < len(closes); i++ {
			require.True(t, got[i].Valid)
			assert.Equal(t, 100.0, got[i].V, "length=%d i=%d", length, i)
		}
	}
}

func TestRSIWilderRecurrence(t *testing.T) {
	closes := []float64{10, 11, 10, 12, 11}
	got := RSI(closes, 2)

	// первые два приращения: +1, -1 -> avgGain=0.5 avgLoss=0.5
	require.True(t, got[2].Valid)
	assert.InDelta(t, 50.0, got[2].V, 1e-9)

	// +2: avgGain=(0.5+2)/2=1.25 avgLoss=0.25 -> rs=5
	assert.InDelta(t, 100-100/6.0, got[3].V, 1e-9)

	// -1: avgGain=0.625 avgLoss=0.625
	assert.InDelta(t, 50.0, got[4].V, 1e-9)
}

func TestATRPct(t *testing.T) {
	c := series(100, 100, 100)
	got := ATRPct(c, 2)
	assert.False(t, got[0].Valid)
	require.True(t, got[1].Valid)
	// TR везде 2, close 100 -> 2%
	assert.InDelta(t, 2.0, got[1].V, 1e-12)
	assert.InDelta(t, 2.0, got[2].V, 1e-12)
}

func TestTrueRangeUsesPrevClose(t *testing.T) {
	c := []models.Candle{
		{High: 11, Low: 9, Close: 10},
		{High: 15, Low: 14, Close: 14.5},
	}
	tr := TrueRange(c)
	assert.Equal(t, 2.0, tr[0])
	assert.Equal(t, 5.0, tr[1])
}

func TestComputeRejectsUnorderedSeries(t *testing.T) {
	c := series(1, 2, 3)
	c[2].OpenTime = c[1].OpenTime

	_, err := Compute(c, DefaultParams())
	require.ErrorIs(t, err, models.ErrInvalidSeries)
}

func TestComputeAligned(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i%7)
	}
	set, err := Compute(series(closes...), DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, 40, set.Len())
	assert.Len(t, set.RSI, 40)
	assert.False(t, set.EMASlow[28].Valid)
	assert.True(t, set.EMASlow[29].Valid)
	assert.True(t, set.VolSMA[9].Valid)
}
