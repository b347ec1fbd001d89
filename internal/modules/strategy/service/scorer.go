package service

import (
	"fmt"
	"math"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
	"deriv_bot/internal/modules/config"
)

// Scorer trend + pullback: тренд по EMA, откат RSI в зону, фильтр
// волатильности по ATR. Чистая функция свечи и индикаторов.
type Scorer struct {
	cfg config.TrendPullbackConfig
}

func NewScorer(cfg config.TrendPullbackConfig) Scorer {
	return Scorer{cfg: cfg}
}

func (s Scorer) Generate(c models.Candle, ind models.IndicatorSet) models.Signal {
	if !ind.Complete() {
		return models.NoSignal("indicators_not_ready")
	}
	price := c.Close
	if price <= 0 {
		return models.NoSignal("invalid_price")
	}

	fast, slow, atr, rsi := *ind.EMAFast, *ind.EMASlow, *ind.ATR, *ind.RSI
	up := fast > slow
	down := fast < slow
	if !up && !down {
		return models.NoSignal("no_trend")
	}

	atrPct := atr / price
	if atrPct < s.cfg.MinATRPct {
		return models.NoSignal(fmt.Sprintf("atr_too_low atr_pct=%.4f", atrPct))
	}
	spread := math.Abs(fast-slow) / price
	if spread < s.cfg.MinEMASpreadPct {
		return models.NoSignal(fmt.Sprintf("ema_spread_too_low spread=%.4f", spread))
	}

	if up && rsi >= s.cfg.RSIOverbought {
		return models.NoSignal("rsi_overbought_skip")
	}
	if down && rsi <= s.cfg.RSIOversold {
		return models.NoSignal("rsi_oversold_skip")
	}

	var (
		side   models.Side
		lo, hi float64
	)
	if up {
		lo, hi = s.cfg.RSILongZone[0], s.cfg.RSILongZone[1]
		if rsi < lo || rsi > hi {
			return models.NoSignal("rsi_not_in_long_zone")
		}
		side = models.SideUp
	} else {
		lo, hi = s.cfg.RSIShortZone[0], s.cfg.RSIShortZone[1]
		if rsi < lo || rsi > hi {
			return models.NoSignal("rsi_not_in_short_zone")
		}
		side = models.SideDown
	}

	trendScore := math.Min(1, spread/(s.cfg.MinEMASpreadPct*4))
	volScore := math.Min(1, atrPct/(s.cfg.MinATRPct*4))
	// 1 в середине зоны, 0 на краях
	mid := (lo + hi) / 2
	half := math.Max((hi-lo)/2, 1e-9)
	rsiScore := math.Max(0, 1-math.Abs(rsi-mid)/half)

	score := helper.Clamp(0.45*trendScore+0.35*rsiScore+0.20*volScore, 0, 1)
	return models.Signal{Side: side, Score: score, Reason: "ok"}
}
