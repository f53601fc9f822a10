package strategy

import (
	"fmt"
	"strings"
	"time"

	"futures_bot/internal/models"
)

// Decision: ответ стратегии на последней закрытой свече.
type Decision struct {
	Intent models.SignalIntent
	Fired  bool
	// Note: почему сигнала нет (или какой фильтр сработал), для логов.
	Note string
}

// State хранит последнюю свечу, на которой уже был сигнал по каждой стороне.
// Живёт у вызывающего и передаётся явно в каждый Evaluate.
type State struct {
	LastLong  time.Time
	LastShort time.Time
}

func (s State) firedAt(side models.Side, at time.Time) bool {
	switch side {
	case models.SideLong:
		return !s.LastLong.IsZero() && s.LastLong.Equal(at)
	case models.SideShort:
		return !s.LastShort.IsZero() && s.LastShort.Equal(at)
	}
	return false
}

func (s State) mark(side models.Side, at time.Time) State {
	switch side {
	case models.SideLong:
		s.LastLong = at
	case models.SideShort:
		s.LastShort = at
	}
	return s
}

// Engine: то, что Runner будет дергать на каждой закрытой свече.
type Engine interface {
	Evaluate(candles []models.Candle, st State) (Decision, State, error)
	Name() models.StrategyType
	MinCandles() int
}

// TieSide: что делать, если одновременно выполнены условия LONG и SHORT.
type TieSide string

const (
	TieLong  TieSide = "LONG"
	TieShort TieSide = "SHORT"
	TieNone  TieSide = "NONE"
)

func ParseTieSide(raw string) (TieSide, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LONG":
		return TieLong, nil
	case "SHORT":
		return TieShort, nil
	case "NONE", "":
		return TieNone, nil
	}
	return TieNone, fmt.Errorf("unknown tie side %q", raw)
}

// resolve сводит два флага к одной стороне.
func resolve(long, short bool, tie TieSide) (models.Side, bool) {
	switch {
	case long && short:
		switch tie {
		case TieLong:
			return models.SideLong, true
		case TieShort:
			return models.SideShort, true
		}
		return models.SideNone, true
	case long:
		return models.SideLong, false
	case short:
		return models.SideShort, false
	}
	return models.SideNone, false
}

func noSignal(note string) Decision { return Decision{Note: note} }
