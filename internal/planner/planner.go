// Package planner превращает сигнал и сырой размер в конкретные параметры ордера,
// округлённые к шагам инструмента.
package planner

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"futures_bot/internal/helper"
	"futures_bot/internal/models"
)

type Config struct {
	// Режим тренда: фиксированные проценты от цены входа.
	StopLossPct   float64 // 1.0 => 1%
	TakeProfitPct float64 // 2.5 => 2.5%
	UseTakeProfit bool

	// Режим пробоя: max(цена*Pct%, Range*доля).
	BreakoutTargetPct   float64
	BreakoutTargetRange float64
	BreakoutStopPct     float64
	BreakoutStopRange   float64
}

func DefaultConfig() Config {
	return Config{
		StopLossPct:         1.0,
		TakeProfitPct:       2.5,
		UseTakeProfit:       true,
		BreakoutTargetPct:   0.7,
		BreakoutTargetRange: 0.5,
		BreakoutStopPct:     0.4,
		BreakoutStopRange:   0.3,
	}
}

type Planner struct {
	cfg Config
}

func New(cfg Config) *Planner {
	return &Planner{cfg: cfg}
}

// Distances: сырые (до округления) расстояния от цены сигнала до стопа и тейка.
// targetDist == 0: тейк не ставим.
func (p *Planner) Distances(intent models.SignalIntent) (stopDist, targetDist float64) {
	px := intent.ReferencePrice
	if intent.Mode == models.StrategyBreakout {
		targetDist = math.Max(px*p.cfg.BreakoutTargetPct/100, intent.Range*p.cfg.BreakoutTargetRange)
		stopDist = math.Max(px*p.cfg.BreakoutStopPct/100, intent.Range*p.cfg.BreakoutStopRange)
		return stopDist, targetDist
	}
	stopDist = px * p.cfg.StopLossPct / 100
	if p.cfg.UseTakeProfit {
		targetDist = px * p.cfg.TakeProfitPct / 100
	}
	return stopDist, targetDist
}

// StopLossPct: процент стопа, который отдаём в risk.Size для сигнала.
func (p *Planner) StopLossPct(intent models.SignalIntent) float64 {
	stopDist, _ := p.Distances(intent)
	if intent.ReferencePrice <= 0 {
		return 0
	}
	return stopDist / intent.ReferencePrice * 100
}

// Plan округляет количество вниз до шага и считает SL/TP с округлением "в безопасную сторону":
// стоп не становится ближе к входу, тейк не уходит дальше.
func (p *Planner) Plan(intent models.SignalIntent, rawQty float64, prec models.InstrumentPrecision) (models.SizedOrder, error) {
	entry := intent.ReferencePrice
	if entry <= 0 {
		return models.SizedOrder{}, fmt.Errorf("entry <= 0")
	}
	if intent.Side != models.SideLong && intent.Side != models.SideShort {
		return models.SizedOrder{}, fmt.Errorf("unknown side %q", intent.Side)
	}

	qty := helper.FloorToStep(rawQty, prec.QtyStep)
	if qty <= 0 || qty < prec.MinQty {
		return models.SizedOrder{}, models.Wrap(models.ErrInsufficientNotional, "plan",
			fmt.Errorf("qty %.8f below min_qty %.8f (raw %.8f)", qty, prec.MinQty, rawQty))
	}
	notional := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(entry))
	if prec.MinNotional > 0 && notional.LessThan(decimal.NewFromFloat(prec.MinNotional)) {
		return models.SizedOrder{}, models.Wrap(models.ErrInsufficientNotional, "plan",
			fmt.Errorf("notional %s below min_notional %.4f", notional.String(), prec.MinNotional))
	}

	stopDist, targetDist := p.Distances(intent)
	if stopDist <= 0 {
		return models.SizedOrder{}, fmt.Errorf("stop distance <= 0")
	}
	stop, target := ProtectivePrices(intent.Side, entry, stopDist, targetDist, prec.TickSize)
	if stop <= 0 {
		return models.SizedOrder{}, fmt.Errorf("stop <= 0 after rounding")
	}

	return models.SizedOrder{
		Side:        intent.Side,
		EntryPrice:  entry,
		Quantity:    qty,
		StopPrice:   stop,
		TargetPrice: target,
	}, nil
}

// ProtectivePrices: стоп и тейк от anchor с округлением к tick в безопасную сторону.
// Тейк, который после округления не лежит строго в прибыльной стороне, отбрасывается (0).
func ProtectivePrices(side models.Side, anchor, stopDist, targetDist, tick float64) (stop, target float64) {
	if side == models.SideLong {
		stop = helper.FloorToStep(anchor-stopDist, tick)
		if targetDist > 0 {
			target = helper.FloorToStep(anchor+targetDist, tick)
			if target <= anchor {
				target = 0
			}
		}
		return stop, target
	}

	stop = helper.CeilToStep(anchor+stopDist, tick)
	if targetDist > 0 {
		target = helper.CeilToStep(anchor-targetDist, tick)
		if target >= anchor || target <= 0 {
			target = 0
		}
	}
	return stop, target
}
