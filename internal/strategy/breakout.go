package strategy

import (
	"fmt"

	"futures_bot/internal/models"
)

// BreakoutConfig: параметры пробоя диапазона.
type BreakoutConfig struct {
	Lookback int     // N закрытых свечей до опорной, например 20
	EpsBreak float64 // доля, на которую цена должна выйти за границу
	MinRange float64 // highN-lowN ниже этого: мёртвый рынок, пропускаем. 0: выключено
	TieSide  TieSide
	// UsePrevClose: опорная цена берётся с предпоследней закрытой свечи.
	UsePrevClose bool
	AllowShort   bool
}

// Breakout: стратегия пробоя максимума/минимума N свечей.
type Breakout struct {
	cfg BreakoutConfig
}

func NewBreakout(cfg BreakoutConfig) *Breakout {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 20
	}
	if cfg.TieSide == "" {
		cfg.TieSide = TieNone
	}
	return &Breakout{cfg: cfg}
}

func (s *Breakout) Name() models.StrategyType { return models.StrategyBreakout }

func (s *Breakout) MinCandles() int {
	if s.cfg.UsePrevClose {
		return s.cfg.Lookback + 2
	}
	return s.cfg.Lookback + 1
}

// Evaluate: вызываешь на закрытии каждой свечи.
func (s *Breakout) Evaluate(candles []models.Candle, st State) (Decision, State, error) {
	if len(candles) < s.MinCandles() {
		return Decision{}, st, models.Wrap(models.ErrDataInsufficient, "breakout",
			fmt.Errorf("have %d candles, need %d", len(candles), s.MinCandles()))
	}

	ref := len(candles) - 1
	if s.cfg.UsePrevClose {
		ref--
	}
	window := candles[ref-s.cfg.Lookback : ref]
	hiN, loN := window[0].High, window[0].Low
	for _, c := range window[1:] {
		if c.High > hiN {
			hiN = c.High
		}
		if c.Low < loN {
			loN = c.Low
		}
	}

	px := candles[ref].Close
	rng := hiN - loN
	if s.cfg.MinRange > 0 && rng < s.cfg.MinRange {
		return noSignal(fmt.Sprintf("range %.6f < min_range %.6f", rng, s.cfg.MinRange)), st, nil
	}

	eps := s.cfg.EpsBreak
	longBreak := px > hiN*(1+eps)
	shortBreak := px < loN*(1-eps)

	side, tie := resolve(longBreak, shortBreak, s.cfg.TieSide)
	switch {
	case side == models.SideNone && tie:
		return noSignal("tie without preference"), st, nil
	case side == models.SideNone:
		return noSignal("no break"), st, nil
	case side == models.SideShort && !s.cfg.AllowShort:
		return noSignal("short not allowed"), st, nil
	}

	at := candles[ref].OpenTime
	if st.firedAt(side, at) {
		return noSignal("already signalled on this candle"), st, nil
	}

	return Decision{
		Fired: true,
		Intent: models.SignalIntent{
			Side:           side,
			ReferencePrice: px,
			Reason:         fmt.Sprintf("breakout n=%d eps=%g hi=%.6f lo=%.6f", s.cfg.Lookback, eps, hiN, loN),
			Mode:           models.StrategyBreakout,
			Range:          rng,
			CandleAt:       at,
		},
	}, st.mark(side, at), nil
}
