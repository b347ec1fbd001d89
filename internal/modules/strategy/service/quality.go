package service

import (
	"deriv_bot/internal/models"
	"deriv_bot/internal/modules/config"
)

// PassesQuality минимальный score, RSI не у краёв и опциональный потолок ATR.
func PassesQuality(cfg config.QualityFilterConfig, sig models.Signal, ind models.IndicatorSet, c models.Candle) bool {
	if !cfg.Enabled {
		return true
	}
	if sig.Score < cfg.MinScore {
		return false
	}
	if ind.RSI != nil {
		if sig.Side == models.SideUp && *ind.RSI > cfg.RSICallMax {
			return false
		}
		if sig.Side == models.SideDown && *ind.RSI < cfg.RSIPutMin {
			return false
		}
	}
	if cfg.MaxATRPct > 0 && ind.ATR != nil && c.Close > 0 {
		if *ind.ATR/c.Close > cfg.MaxATRPct {
			return false
		}
	}
	return true
}
