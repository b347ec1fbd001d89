package service

import "deriv_bot/internal/models"

type htfBar struct {
	open, high, low, close float64
}

// HigherTimeframeTrend складывает последние N базовых свечей в одну
// старшую и сравнивает закрытия двух последних старших свечей.
type HigherTimeframeTrend struct {
	n    int
	buf  []models.Candle // не больше 3N
	last *htfBar
	prev *htfBar
}

func NewHigherTimeframeTrend(blocks int) *HigherTimeframeTrend {
	if blocks < 1 {
		blocks = 1
	}
	return &HigherTimeframeTrend{n: blocks, buf: make([]models.Candle, 0, blocks*3)}
}

func (h *HigherTimeframeTrend) Add(c models.Candle) {
	if len(h.buf) == h.n*3 {
		copy(h.buf, h.buf[1:])
		h.buf = h.buf[:len(h.buf)-1]
	}
	h.buf = append(h.buf, c)
	if len(h.buf) < h.n {
		return
	}

	chunk := h.buf[len(h.buf)-h.n:]
	agg := &htfBar{open: chunk[0].Open, high: chunk[0].High, low: chunk[0].Low, close: chunk[len(chunk)-1].Close}
	for _, x := range chunk[1:] {
		agg.high = max(agg.high, x.High)
		agg.low = min(agg.low, x.Low)
	}
	h.prev, h.last = h.last, agg
}

func (h *HigherTimeframeTrend) Trend() models.Trend {
	if h.last == nil || h.prev == nil {
		return models.TrendNeutral
	}
	switch {
	case h.last.close > h.prev.close:
		return models.TrendBullish
	case h.last.close < h.prev.close:
		return models.TrendBearish
	}
	return models.TrendNeutral
}

// IsAligned up только на бычьем тренде, down только на медвежьем;
// нейтральный пропускается при allowNeutral.
func (h *HigherTimeframeTrend) IsAligned(side models.Side, allowNeutral bool) bool {
	switch h.Trend() {
	case models.TrendNeutral:
		return allowNeutral
	case models.TrendBullish:
		return side == models.SideUp
	case models.TrendBearish:
		return side == models.SideDown
	}
	return false
}
