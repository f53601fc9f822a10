package strategy

import (
	"fmt"

	"futures_bot/internal/indicator"
	"futures_bot/internal/models"
	"futures_bot/internal/modules/config"
)

func NewEngine(cfg *config.Config) (Engine, error) {
	sc := cfg.Strategy
	tie, err := ParseTieSide(sc.TieSide)
	if err != nil {
		return nil, err
	}

	switch models.StrategyType(sc.Mode) {
	case models.StrategyBreakout:
		bc := cfg.Breakout
		btie, err := ParseTieSide(bc.TieSide)
		if err != nil {
			return nil, err
		}
		return NewBreakout(BreakoutConfig{
			Lookback:     bc.Lookback,
			EpsBreak:     bc.EpsBreak,
			MinRange:     bc.MinRange,
			TieSide:      btie,
			UsePrevClose: bc.UsePrevClose,
			AllowShort:   bc.AllowShort,
		}), nil

	case models.StrategyTrend, "":
		return NewTrend(TrendConfig{
			Params: indicator.Params{
				EMAFast: sc.EMAFast,
				EMASlow: sc.EMASlow,
				RSI:     sc.RSIPeriod,
				ATR:     sc.ATRPeriod,
				Volume:  sc.VolumePeriod,
			},
			VolumeMult:   sc.VolumeMult,
			ATRMinPct:    sc.ATRMinPct,
			ATRMaxPct:    sc.ATRMaxPct,
			RSILongMin:   sc.RSILongMin,
			RSILongMax:   sc.RSILongMax,
			RSIShortMin:  sc.RSIShortMin,
			RSIShortMax:  sc.RSIShortMax,
			Continuation: sc.AllowContinuation,
			TieSide:      tie,
		}), nil
	}
	return nil, fmt.Errorf("unknown strategy mode %q", sc.Mode)
}
