package service

import (
	"math"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
)

// ComputeTpSl денежные take profit / stop loss как доля ставки.
func ComputeTpSl(stake, tpPct, slPct float64) models.TpSl {
	stake = math.Max(0.01, stake)
	return models.TpSl{
		TakeProfit: math.Max(0.01, helper.RoundMoney(stake*tpPct)),
		StopLoss:   math.Max(0.01, helper.RoundMoney(stake*slPct)),
	}
}
