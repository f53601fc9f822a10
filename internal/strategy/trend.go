package strategy

import (
	"fmt"

	"futures_bot/internal/indicator"
	"futures_bot/internal/models"
)

// TrendConfig: параметры режима пересечения EMA с фильтрами.
type TrendConfig struct {
	Params indicator.Params

	VolumeMult  float64
	ATRMinPct   float64
	ATRMaxPct   float64
	RSILongMin  float64
	RSILongMax  float64
	RSIShortMin float64
	RSIShortMax float64

	// Continuation: разрешить вход по продолжению тренда, а не только на свежем кроссе.
	Continuation bool
	TieSide      TieSide
}

func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		Params:       indicator.DefaultParams(),
		VolumeMult:   1.0,
		ATRMinPct:    0.20,
		ATRMaxPct:    1.20,
		RSILongMin:   45,
		RSILongMax:   75,
		RSIShortMin:  25,
		RSIShortMax:  55,
		Continuation: true,
		TieSide:      TieNone,
	}
}

// Trend: пересечение EMA fast/slow + продолжение тренда, фильтры объёма/ATR/RSI.
type Trend struct {
	cfg TrendConfig
}

func NewTrend(cfg TrendConfig) *Trend {
	def := indicator.DefaultParams()
	if cfg.Params.EMAFast <= 0 {
		cfg.Params.EMAFast = def.EMAFast
	}
	if cfg.Params.EMASlow <= 0 {
		cfg.Params.EMASlow = def.EMASlow
	}
	if cfg.Params.RSI <= 0 {
		cfg.Params.RSI = def.RSI
	}
	if cfg.Params.ATR <= 0 {
		cfg.Params.ATR = def.ATR
	}
	if cfg.Params.Volume <= 0 {
		cfg.Params.Volume = def.Volume
	}
	if cfg.TieSide == "" {
		cfg.TieSide = TieNone
	}
	return &Trend{cfg: cfg}
}

func (s *Trend) Name() models.StrategyType { return models.StrategyTrend }

// MinCandles: нужен предыдущий бар с определённой медленной EMA.
func (s *Trend) MinCandles() int { return s.cfg.Params.EMASlow + 1 }

func (s *Trend) Evaluate(candles []models.Candle, st State) (Decision, State, error) {
	if len(candles) < s.MinCandles() {
		return Decision{}, st, models.Wrap(models.ErrDataInsufficient, "trend",
			fmt.Errorf("have %d candles, need %d", len(candles), s.MinCandles()))
	}
	set, err := indicator.Compute(candles, s.cfg.Params)
	if err != nil {
		return Decision{}, st, err
	}
	return s.EvaluateSet(candles, set, st)
}

// bar: значения индикаторов на одной свече.
type bar struct {
	close, volume    float64
	fast, slow       indicator.Value
	rsi, atr, volSMA indicator.Value
}

func barAt(candles []models.Candle, set indicator.Set, i int) bar {
	return bar{
		close:  candles[i].Close,
		volume: candles[i].Volume,
		fast:   set.EMAFast[i],
		slow:   set.EMASlow[i],
		rsi:    set.RSI[i],
		atr:    set.ATRPct[i],
		volSMA: set.VolSMA[i],
	}
}

// EvaluateSet работает по уже посчитанным индикаторам.
// Решение принимается на последней свече ряда, предыдущая нужна для кросса.
func (s *Trend) EvaluateSet(candles []models.Candle, set indicator.Set, st State) (Decision, State, error) {
	n := len(candles)
	if n < 2 || set.Len() != n {
		return Decision{}, st, models.Wrap(models.ErrDataInsufficient, "trend",
			fmt.Errorf("candles=%d indicators=%d", n, set.Len()))
	}
	now := barAt(candles, set, n-1)
	prev := barAt(candles, set, n-2)
	if !now.fast.Valid || !now.slow.Valid || !prev.fast.Valid || !prev.slow.Valid {
		return Decision{}, st, models.Wrap(models.ErrDataInsufficient, "trend",
			fmt.Errorf("ema undefined at candle %d", n-1))
	}

	longSetup, longWhy := s.longSetup(now, prev)
	shortSetup, shortWhy := s.shortSetup(now, prev)

	var notes []string
	longOK, shortOK := false, false
	if longSetup {
		note, ok := s.passesFilters(now, models.SideLong)
		longOK = ok
		if note != "" {
			if ok {
				longWhy += "+" + note
			} else {
				notes = append(notes, "long: "+note)
			}
		}
	}
	if shortSetup {
		note, ok := s.passesFilters(now, models.SideShort)
		shortOK = ok
		if note != "" {
			if ok {
				shortWhy += "+" + note
			} else {
				notes = append(notes, "short: "+note)
			}
		}
	}

	side, tie := resolve(longOK, shortOK, s.cfg.TieSide)
	if side == models.SideNone {
		switch {
		case tie:
			return noSignal("tie without preference"), st, nil
		case len(notes) > 0:
			return noSignal(fmt.Sprint(notes)), st, nil
		}
		return noSignal("no setup"), st, nil
	}

	at := candles[n-1].OpenTime
	if st.firedAt(side, at) {
		return noSignal("already signalled on this candle"), st, nil
	}

	reason := longWhy
	if side == models.SideShort {
		reason = shortWhy
	}
	return Decision{
		Fired: true,
		Intent: models.SignalIntent{
			Side:           side,
			ReferencePrice: now.close,
			Reason:         reason,
			Mode:           models.StrategyTrend,
			CandleAt:       at,
		},
	}, st.mark(side, at), nil
}

func (s *Trend) longSetup(now, prev bar) (bool, string) {
	trendUp := now.fast.V > now.slow.V
	if !trendUp {
		return false, ""
	}
	if !(prev.fast.V > prev.slow.V) {
		return true, "cross_up"
	}
	if s.cfg.Continuation {
		gapNow := now.fast.V - now.slow.V
		gapPrev := prev.fast.V - prev.slow.V
		if gapNow > 0 && gapNow > gapPrev && now.close >= now.fast.V {
			return true, "continuation_up"
		}
	}
	return false, ""
}

func (s *Trend) shortSetup(now, prev bar) (bool, string) {
	trendDown := now.fast.V < now.slow.V
	if !trendDown {
		return false, ""
	}
	if !(prev.fast.V < prev.slow.V) {
		return true, "cross_down"
	}
	if s.cfg.Continuation {
		gapNow := now.slow.V - now.fast.V
		gapPrev := prev.slow.V - prev.fast.V
		if gapNow > 0 && gapNow > gapPrev && now.close <= now.fast.V {
			return true, "continuation_down"
		}
	}
	return false, ""
}

// passesFilters: объём, ATR-коридор, RSI-коридор с исключением для продолжения.
// Фильтр с неопределённым входом пропускается.
func (s *Trend) passesFilters(b bar, side models.Side) (string, bool) {
	if b.volSMA.Valid && b.volume < b.volSMA.V*s.cfg.VolumeMult {
		return fmt.Sprintf("volume %.4f < vol_sma %.4f * %.2f", b.volume, b.volSMA.V, s.cfg.VolumeMult), false
	}
	if b.atr.Valid && (b.atr.V < s.cfg.ATRMinPct || b.atr.V > s.cfg.ATRMaxPct) {
		return fmt.Sprintf("atr_pct %.4f not in [%.2f, %.2f]", b.atr.V, s.cfg.ATRMinPct, s.cfg.ATRMaxPct), false
	}
	if !b.rsi.Valid {
		return "", true
	}

	rsi := b.rsi.V
	switch side {
	case models.SideLong:
		if rsi >= s.cfg.RSILongMin && rsi <= s.cfg.RSILongMax {
			return "", true
		}
		// перегретый RSI терпим только в подтверждённом аптренде
		if s.cfg.Continuation && b.fast.V > b.slow.V && rsi > s.cfg.RSILongMax {
			return "rsi_override", true
		}
		return fmt.Sprintf("rsi %.2f not in [%.0f, %.0f]", rsi, s.cfg.RSILongMin, s.cfg.RSILongMax), false
	case models.SideShort:
		if rsi >= s.cfg.RSIShortMin && rsi <= s.cfg.RSIShortMax {
			return "", true
		}
		if s.cfg.Continuation && b.fast.V < b.slow.V && rsi < s.cfg.RSIShortMin {
			return "rsi_override", true
		}
		return fmt.Sprintf("rsi %.2f not in [%.0f, %.0f]", rsi, s.cfg.RSIShortMin, s.cfg.RSIShortMax), false
	}
	return "", false
}
