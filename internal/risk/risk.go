// Package risk считает размер позиции по риску на сделку и триггеры принудительного закрытия.
package risk

import (
	"math"
	"time"
)

// Size: количество базового актива, при котором стоп на stopLossPct от entry
// стоит balance*riskPct/100. Не округляется.
func Size(balance, riskPct, entry, stopLossPct float64) float64 {
	stopDist := entry * stopLossPct / 100
	return SizeByDistance(balance, riskPct, stopDist)
}

// SizeByDistance: то же, но дистанция стопа задана в цене (режим пробоя).
func SizeByDistance(balance, riskPct, stopDist float64) float64 {
	if stopDist <= 0 || balance <= 0 || riskPct <= 0 {
		return 0
	}
	q := (balance * riskPct / 100) / stopDist
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0
	}
	return q
}

type Guard struct {
	MaxBarsOpen       int     // по умолчанию 50
	DailyLossLimitPct float64 // 2.0 => -2% от equity начала дня
}

// ShouldTimeout: позиция висит дольше MaxBarsOpen закрытых свечей.
func (g Guard) ShouldTimeout(openedAt, now time.Time, interval time.Duration) bool {
	if g.MaxBarsOpen <= 0 || openedAt.IsZero() || interval <= 0 {
		return false
	}
	bars := int(now.Sub(openedAt) / interval)
	return bars >= g.MaxBarsOpen
}

// DrawdownPct: изменение equity от начала дня в процентах (отрицательное: просадка).
func DrawdownPct(dayStart, equity float64) float64 {
	if dayStart <= 0 {
		return 0
	}
	return (equity - dayStart) * 100 / dayStart
}

func (g Guard) ShouldDailyStop(dayStart, equity float64) bool {
	if g.DailyLossLimitPct <= 0 || dayStart <= 0 {
		return false
	}
	return DrawdownPct(dayStart, equity) <= -g.DailyLossLimitPct
}
