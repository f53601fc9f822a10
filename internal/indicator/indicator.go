// Package indicator считает индикаторы по ряду закрытых свечей.
// Значения до заполнения окна не определены (Valid == false), нулём они не подменяются.
package indicator

import (
	"fmt"
	"math"

	"futures_bot/internal/models"
)

type Value struct {
	V     float64
	Valid bool
}

func defined(v float64) Value { return Value{V: v, Valid: true} }

// EMA с затравкой из простого среднего первых length значений.
func EMA(xs []float64, length int) []Value {
	out := make([]Value, len(xs))
	if length <= 0 || len(xs) < length {
		return out
	}
	alpha := 2.0 / (float64(length) + 1)

	var sum float64
	for i := 0; i < length; i++ {
		sum += xs[i]
	}
	ema := sum / float64(length)
	out[length-1] = defined(ema)

	for i := length; i < len(xs); i++ {
		ema = alpha*xs[i] + (1-alpha)*ema
		out[i] = defined(ema)
	}
	return out
}

// SMA: простое скользящее среднее.
func SMA(xs []float64, length int) []Value {
	out := make([]Value, len(xs))
	if length <= 0 || len(xs) < length {
		return out
	}
	var sum float64
	for i, x := range xs {
		sum += x
		if i >= length {
			sum -= xs[i-length]
		}
		if i >= length-1 {
			out[i] = defined(sum / float64(length))
		}
	}
	return out
}

// RSI по Уайлдеру: первые средние простые по length приращениям,
// дальше avg = (avg*(length-1) + x) / length.
func RSI(closes []float64, length int) []Value {
	out := make([]Value, len(closes))
	if length <= 0 || len(closes) <= length {
		return out
	}

	var gain, loss float64
	for i := 1; i <= length; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(length)
	avgLoss := loss / float64(length)
	out[length] = defined(rsiFrom(avgGain, avgLoss))

	n := float64(length)
	for i := length + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*(n-1) + g) / n
		avgLoss = (avgLoss*(n-1) + l) / n
		out[i] = defined(rsiFrom(avgGain, avgLoss))
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// TrueRange: для первой свечи high-low.
func TrueRange(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			prev := candles[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// ATRPct: простое скользящее среднее true range в процентах от close.
func ATRPct(candles []models.Candle, length int) []Value {
	atr := SMA(TrueRange(candles), length)
	out := make([]Value, len(candles))
	for i, a := range atr {
		if !a.Valid || candles[i].Close == 0 {
			continue
		}
		out[i] = defined(a.V / candles[i].Close * 100)
	}
	return out
}

func VolumeSMA(candles []models.Candle, length int) []Value {
	vols := make([]float64, len(candles))
	for i, c := range candles {
		vols[i] = c.Volume
	}
	return SMA(vols, length)
}

type Params struct {
	EMAFast int
	EMASlow int
	RSI     int
	ATR     int
	Volume  int
}

func DefaultParams() Params {
	return Params{EMAFast: 10, EMASlow: 30, RSI: 14, ATR: 14, Volume: 10}
}

// Set выровнен один к одному с рядом свечей.
type Set struct {
	EMAFast []Value
	EMASlow []Value
	RSI     []Value
	ATRPct  []Value
	VolSMA  []Value
}

func (s Set) Len() int { return len(s.EMAFast) }

// ValidateSeries проверяет строгое возрастание open_time.
func ValidateSeries(candles []models.Candle) error {
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			return models.Wrap(models.ErrInvalidSeries, "validate",
				fmt.Errorf("candle %d at %s is not after %s", i, candles[i].OpenTime, candles[i-1].OpenTime))
		}
	}
	return nil
}

func Compute(candles []models.Candle, p Params) (Set, error) {
	if err := ValidateSeries(candles); err != nil {
		return Set{}, err
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return Set{
		EMAFast: EMA(closes, p.EMAFast),
		EMASlow: EMA(closes, p.EMASlow),
		RSI:     RSI(closes, p.RSI),
		ATRPct:  ATRPct(candles, p.ATR),
		VolSMA:  VolumeSMA(candles, p.Volume),
	}, nil
}
