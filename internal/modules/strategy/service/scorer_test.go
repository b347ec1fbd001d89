package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
	"deriv_bot/internal/modules/config"
)

func indicatorSet(fast, slow, atr, rsi float64) models.IndicatorSet {
	return models.IndicatorSet{EMAFast: helper.Ptr(fast), EMASlow: helper.Ptr(slow), ATR: helper.Ptr(atr), RSI: helper.Ptr(rsi)}
}

func defaultScorer() Scorer {
	return NewScorer(config.Default().Trading.Strategy.TrendPullback)
}

func TestScorerUptrendPullback(t *testing.T) {
	// ATR% = 0.002, spread = 0.001, RSI в середине зоны [45,60]
	sig := defaultScorer().Generate(candle(1000, 1001, 999, 1000), indicatorSet(1001, 1000, 2, 52.5))

	assert.Equal(t, models.SideUp, sig.Side)
	assert.Equal(t, "ok", sig.Reason)
	assert.InDelta(t, 0.45*0.5+0.35*1+0.20*0.5, sig.Score, 1e-9)
}

func TestScorerOverboughtSkip(t *testing.T) {
	sig := defaultScorer().Generate(candle(1000, 1001, 999, 1000), indicatorSet(1001, 1000, 2, 75))
	assert.Equal(t, models.SideNone, sig.Side)
	assert.Equal(t, "rsi_overbought_skip", sig.Reason)
}

func TestScorerReasons(t *testing.T) {
	cases := []struct {
		name   string
		c      models.Candle
		ind    models.IndicatorSet
		side   models.Side
		reason string
	}{
		{"not ready", candle(1, 1, 1, 1000), models.IndicatorSet{}, models.SideNone, "indicators_not_ready"},
		{"bad price", candle(1, 1, 1, 0), indicatorSet(1, 1, 1, 50), models.SideNone, "invalid_price"},
		{"flat", candle(1, 1, 1, 1000), indicatorSet(1000, 1000, 2, 50), models.SideNone, "no_trend"},
		{"atr low", candle(1, 1, 1, 1000), indicatorSet(1001, 1000, 0.5, 50), models.SideNone, "atr_too_low atr_pct=0.0005"},
		{"spread low", candle(1, 1, 1, 1000), indicatorSet(1000.2, 1000, 2, 50), models.SideNone, "ema_spread_too_low spread=0.0002"},
		{"oversold", candle(1, 1, 1, 1000), indicatorSet(999, 1000, 2, 30), models.SideNone, "rsi_oversold_skip"},
		{"long zone", candle(1, 1, 1, 1000), indicatorSet(1001, 1000, 2, 62), models.SideNone, "rsi_not_in_long_zone"},
		{"short zone", candle(1, 1, 1, 1000), indicatorSet(999, 1000, 2, 58), models.SideNone, "rsi_not_in_short_zone"},
		{"down ok", candle(1, 1, 1, 1000), indicatorSet(999, 1000, 2, 47.5), models.SideDown, "ok"},
		{"zone edge inclusive", candle(1, 1, 1, 1000), indicatorSet(1001, 1000, 2, 60), models.SideUp, "ok"},
	}
	s := defaultScorer()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := s.Generate(tc.c, tc.ind)
			assert.Equal(t, tc.side, sig.Side)
			assert.Equal(t, tc.reason, sig.Reason)
			assert.GreaterOrEqual(t, sig.Score, 0.0)
			assert.LessOrEqual(t, sig.Score, 1.0)
			if tc.side == models.SideNone {
				assert.Zero(t, sig.Score)
			}
		})
	}
}

func TestScorerScoreCapsAtOne(t *testing.T) {
	sig := defaultScorer().Generate(candle(1, 1, 1, 1000), indicatorSet(1010, 1000, 20, 52.5))
	assert.Equal(t, "ok", sig.Reason)
	assert.InDelta(t, 1.0, sig.Score, 1e-9)
}

func TestPassesQuality(t *testing.T) {
	cfg := config.Default().Trading.Strategy.QualityFilter
	c := candle(1, 1, 1, 1000)
	up := models.Signal{Side: models.SideUp, Score: 0.6, Reason: "ok"}
	down := models.Signal{Side: models.SideDown, Score: 0.6, Reason: "ok"}

	assert.True(t, PassesQuality(cfg, up, indicatorSet(0, 0, 2, 60), c))
	assert.False(t, PassesQuality(cfg, up, indicatorSet(0, 0, 2, 66), c))
	assert.False(t, PassesQuality(cfg, down, indicatorSet(0, 0, 2, 34), c))

	cfg.MinScore = 0.7
	assert.False(t, PassesQuality(cfg, up, indicatorSet(0, 0, 2, 60), c))

	cfg.MinScore = 0
	cfg.MaxATRPct = 0.001
	assert.False(t, PassesQuality(cfg, up, indicatorSet(0, 0, 2, 60), c))

	cfg.Enabled = false
	assert.True(t, PassesQuality(cfg, up, indicatorSet(0, 0, 2, 99), c))
}
