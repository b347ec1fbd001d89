package service

import (
	"fmt"
	"math"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
	"deriv_bot/internal/modules/config"
)

// Sizer ставка от баланса и score сигнала, без мартингейла.
type Sizer struct {
	cfg config.RiskConfig
}

func NewSizer(cfg config.RiskConfig) Sizer {
	return Sizer{cfg: cfg}
}

func (s Sizer) Compute(balance, score float64) models.SizeDecision {
	if balance <= 0 {
		return models.SizeDecision{Reason: "invalid_balance"}
	}
	if score < s.cfg.ScoreMinThreshold {
		return models.SizeDecision{Reason: fmt.Sprintf("score_too_low score=%.2f", score)}
	}

	var risk float64
	if score >= s.cfg.ScoreHighScoreThreshold {
		risk = math.Min(s.cfg.RiskPerTradePctHigh, s.cfg.MaxRiskPerTradePct)
	} else {
		t := (score - s.cfg.ScoreMinThreshold) / math.Max(s.cfg.ScoreHighScoreThreshold-s.cfg.ScoreMinThreshold, 1e-9)
		risk = s.cfg.RiskPerTradePct + t*(s.cfg.RiskPerTradePctHigh-s.cfg.RiskPerTradePct)
		risk = math.Min(risk, s.cfg.MaxRiskPerTradePct)
	}

	// сначала центы, потом границы, тоже приведённые к центам
	stake := helper.Clamp(helper.RoundMoney(balance*risk), helper.CeilCents(s.cfg.MinStake), helper.FloorCents(s.cfg.MaxStake))
	return models.SizeDecision{
		Allowed:     true,
		Stake:       stake,
		RiskPercent: risk,
		Reason:      "ok",
	}
}
