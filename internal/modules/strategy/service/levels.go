package service

import (
	"math"

	"deriv_bot/internal/models"
)

// ComputeLevels поддержка = минимум лоёв, сопротивление = максимум хаёв.
// Меньше minCandles свечей: уровней нет.
func ComputeLevels(recent []models.Candle, minCandles int) (support, resistance *float64) {
	if len(recent) == 0 || len(recent) < minCandles {
		return nil, nil
	}
	lo, hi := recent[0].Low, recent[0].High
	for _, c := range recent[1:] {
		lo = math.Min(lo, c.Low)
		hi = math.Max(hi, c.High)
	}
	return &lo, &hi
}

// PassesLevels up допускается только рядом с поддержкой, down рядом с
// сопротивлением. Без данных фильтр ничего не блокирует.
func PassesLevels(side models.Side, closePrice float64, support, resistance *float64, nearPct float64, minMet bool) bool {
	if !minMet || closePrice <= 0 {
		return true
	}
	if support == nil && resistance == nil {
		return true
	}
	ref := math.Max(closePrice, 1e-9)

	switch side {
	case models.SideUp:
		if support == nil {
			return true
		}
		return math.Abs(closePrice-*support)/ref <= nearPct
	case models.SideDown:
		if resistance == nil {
			return true
		}
		return math.Abs(closePrice-*resistance)/ref <= nearPct
	}
	return true
}
