package models

import "time"

type StrategyType string

const (
	StrategyTrend    StrategyType = "trend"
	StrategyBreakout StrategyType = "breakout"
)

// Side: направление позиции/сигнала: "LONG"/"SHORT" или пустая строка.
type Side string

const (
	SideNone  Side = ""
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	}
	return SideNone
}

// OrderSide: сторона ордера, которой открывается позиция s.
func (s Side) OrderSide() OrderSide {
	if s == SideShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Candle: закрытая OHLCV-свеча.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// SignalIntent: решение SignalEngine на одной закрытой свече.
type SignalIntent struct {
	Side           Side
	ReferencePrice float64
	Reason         string
	Mode           StrategyType
	// Range заполняется только в режиме пробоя: highN - lowN.
	Range    float64
	CandleAt time.Time
}

// SizedOrder: ордер после сайзинга и округления.
// TargetPrice == 0 означает "без тейка".
type SizedOrder struct {
	Side        Side
	EntryPrice  float64
	Quantity    float64
	StopPrice   float64
	TargetPrice float64
}

func (o SizedOrder) HasTarget() bool { return o.TargetPrice > 0 }
