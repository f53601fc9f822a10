package models

import "time"

// InstrumentPrecision: ограничения биржи по инструменту, кешируются на время жизни процесса.
type InstrumentPrecision struct {
	TickSize    float64
	QtyStep     float64
	MinQty      float64
	MinNotional float64
}

// PositionSnapshot: единственный источник правды о том, открыта ли позиция.
type PositionSnapshot struct {
	Symbol        string
	Side          Side
	Size          float64
	AvgEntryPrice float64
	UpdatedAt     time.Time
}

func (p PositionSnapshot) IsFlat() bool { return p.Size <= 0 }

type Ticker struct {
	Bid  float64
	Ask  float64
	Last float64
}
