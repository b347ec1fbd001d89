package service

import (
	"fmt"
	"math"

	"deriv_bot/internal/models"
)

// Indicators инкрементальные EMA fast/slow, ATR и RSI (сглаживание Уайлдера).
type Indicators struct {
	fastPeriod, slowPeriod, atrPeriod, rsiPeriod int

	bars      int
	fast      emaState
	slow      emaState
	atr       float64
	avgGain   float64
	avgLoss   float64
	prevClose float64
	hasPrev   bool
}

func NewIndicators(fast, slow, atr, rsi int) (*Indicators, error) {
	for name, p := range map[string]int{"ema_fast": fast, "ema_slow": slow, "atr": atr, "rsi": rsi} {
		if p <= 1 {
			return nil, fmt.Errorf("%s period must be > 1, got %d", name, p)
		}
	}
	return &Indicators{
		fastPeriod: fast,
		slowPeriod: slow,
		atrPeriod:  atr,
		rsiPeriod:  rsi,
		fast:       newEMA(fast),
		slow:       newEMA(slow),
	}, nil
}

// Update учитывает закрытую свечу и возвращает текущие значения.
func (in *Indicators) Update(c models.Candle) models.IndicatorSet {
	in.bars++
	closePrice := c.Close

	fast := in.fast.Update(closePrice)
	slow := in.slow.Update(closePrice)

	tr := c.High - c.Low
	change := 0.0
	if in.hasPrev {
		tr = math.Max(tr, math.Max(math.Abs(c.High-in.prevClose), math.Abs(c.Low-in.prevClose)))
		change = closePrice - in.prevClose
	}
	gain := math.Max(change, 0)
	loss := math.Max(-change, 0)

	if in.bars == 1 {
		in.atr = tr
		in.avgGain = gain
		in.avgLoss = loss
	} else {
		ap, rp := float64(in.atrPeriod), float64(in.rsiPeriod)
		in.atr = (in.atr*(ap-1) + tr) / ap
		in.avgGain = (in.avgGain*(rp-1) + gain) / rp
		in.avgLoss = (in.avgLoss*(rp-1) + loss) / rp
	}

	// пока RSI не прогрет, держим нейтральные 50
	rsi := 50.0
	if in.bars >= in.rsiPeriod {
		if in.avgLoss == 0 {
			rsi = 100
		} else {
			rs := in.avgGain / math.Max(in.avgLoss, 1e-12)
			rsi = 100 - 100/(1+rs)
		}
	}

	in.prevClose = closePrice
	in.hasPrev = true

	atr := in.atr
	return models.IndicatorSet{EMAFast: &fast, EMASlow: &slow, ATR: &atr, RSI: &rsi}
}

func (in *Indicators) IsReady() bool {
	return in.bars >= max(in.slowPeriod, in.atrPeriod, in.rsiPeriod)
}

func (in *Indicators) Bars() int { return in.bars }
