package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures_bot/internal/models"
)

// rangeCandles: n свечей в диапазоне [lo, hi] и последняя с close=px.
func rangeCandles(n int, hi, lo, px float64) []models.Candle {
	out := make([]models.Candle, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, models.Candle{
			OpenTime: t0.Add(time.Duration(i) * time.Minute),
			Open:     (hi + lo) / 2,
			High:     hi,
			Low:      lo,
			Close:    (hi + lo) / 2,
			Volume:   10,
		})
	}
	out = append(out, models.Candle{
		OpenTime: t0.Add(time.Duration(n) * time.Minute),
		Open:     (hi + lo) / 2,
		High:     px,
		Low:      (hi + lo) / 2,
		Close:    px,
		Volume:   10,
	})
	return out
}

func TestBreakoutScenarioB(t *testing.T) {
	eng := NewBreakout(BreakoutConfig{Lookback: 20, EpsBreak: 0.01})
	candles := rangeCandles(20, 100, 90, 102)

	d, st, err := eng.Evaluate(candles, State{})
	require.NoError(t, err)
	require.True(t, d.Fired)
	assert.Equal(t, models.SideLong, d.Intent.Side)
	assert.Equal(t, models.StrategyBreakout, d.Intent.Mode)
	assert.Equal(t, 102.0, d.Intent.ReferencePrice)
	assert.Equal(t, 10.0, d.Intent.Range)
	assert.Equal(t, candles[20].OpenTime, st.LastLong)
}

func TestBreakoutStrictThreshold(t *testing.T) {
	eng := NewBreakout(BreakoutConfig{Lookback: 20, EpsBreak: 0.01})
	d, _, err := eng.Evaluate(rangeCandles(20, 100, 90, 101), State{})
	require.NoError(t, err)
	assert.False(t, d.Fired)
}

func TestBreakoutShortRequiresAllowShort(t *testing.T) {
	candles := rangeCandles(20, 100, 90, 88)

	d, _, err := NewBreakout(BreakoutConfig{Lookback: 20, EpsBreak: 0.01}).Evaluate(candles, State{})
	require.NoError(t, err)
	assert.False(t, d.Fired)
	assert.Equal(t, "short not allowed", d.Note)

	d, _, err = NewBreakout(BreakoutConfig{Lookback: 20, EpsBreak: 0.01, AllowShort: true}).Evaluate(candles, State{})
	require.NoError(t, err)
	require.True(t, d.Fired)
	assert.Equal(t, models.SideShort, d.Intent.Side)
}

func TestBreakoutMinRange(t *testing.T) {
	eng := NewBreakout(BreakoutConfig{Lookback: 20, EpsBreak: 0.01, MinRange: 15})
	d, _, err := eng.Evaluate(rangeCandles(20, 100, 90, 102), State{})
	require.NoError(t, err)
	assert.False(t, d.Fired)
	assert.Contains(t, d.Note, "min_range")
}

func TestBreakoutTieSide(t *testing.T) {
	// битые данные: high ниже low, диапазон вывернут: оба условия пробоя истинны
	candles := rangeCandles(20, 90, 100, 95)

	cases := []struct {
		tie  TieSide
		want models.Side
	}{
		{TieLong, models.SideLong},
		{TieShort, models.SideShort},
		{TieNone, models.SideNone},
	}
	for _, tc := range cases {
		eng := NewBreakout(BreakoutConfig{Lookback: 20, EpsBreak: 0.01, TieSide: tc.tie, AllowShort: true})
		d, _, err := eng.Evaluate(candles, State{})
		require.NoError(t, err)
		if tc.want == models.SideNone {
			assert.False(t, d.Fired)
			assert.Equal(t, "tie without preference", d.Note)
			continue
		}
		require.True(t, d.Fired, "tie=%s", tc.tie)
		assert.Equal(t, tc.want, d.Intent.Side)
	}
}

func TestBreakoutUsePrevClose(t *testing.T) {
	candles := rangeCandles(20, 100, 90, 102)
	candles = append(candles, models.Candle{
		OpenTime: candles[20].OpenTime.Add(time.Minute),
		Open:     102, High: 103, Low: 95, Close: 96, Volume: 10,
	})

	eng := NewBreakout(BreakoutConfig{Lookback: 20, EpsBreak: 0.01, UsePrevClose: true})
	assert.Equal(t, 22, eng.MinCandles())

	d, _, err := eng.Evaluate(candles, State{})
	require.NoError(t, err)
	require.True(t, d.Fired)
	assert.Equal(t, 102.0, d.Intent.ReferencePrice)
	assert.Equal(t, candles[20].OpenTime, d.Intent.CandleAt)
}

func TestBreakoutOncePerCandle(t *testing.T) {
	eng := NewBreakout(BreakoutConfig{Lookback: 20, EpsBreak: 0.01})
	candles := rangeCandles(20, 100, 90, 102)

	d, st, err := eng.Evaluate(candles, State{})
	require.NoError(t, err)
	require.True(t, d.Fired)

	d, _, err = eng.Evaluate(candles, st)
	require.NoError(t, err)
	assert.False(t, d.Fired)
}

func TestBreakoutDataInsufficient(t *testing.T) {
	eng := NewBreakout(BreakoutConfig{Lookback: 20})
	_, _, err := eng.Evaluate(rangeCandles(19, 100, 90, 95), State{})
	require.ErrorIs(t, err, models.ErrDataInsufficient)
}

func TestParseTieSide(t *testing.T) {
	ts, err := ParseTieSide("long")
	require.NoError(t, err)
	assert.Equal(t, TieLong, ts)

	ts, err = ParseTieSide("")
	require.NoError(t, err)
	assert.Equal(t, TieNone, ts)

	_, err = ParseTieSide("both")
	require.Error(t, err)
}
