package models

// Side направление сигнала/контракта.
type Side string

const (
	SideNone Side = "none"
	SideUp   Side = "up"
	SideDown Side = "down"
)

// Contract код направления для rise/fall контрактов брокера.
func (s Side) Contract() string {
	switch s {
	case SideUp:
		return "CALL"
	case SideDown:
		return "PUT"
	}
	return ""
}

// MultiplierContract код направления для multiplier контрактов.
func (s Side) MultiplierContract() string {
	switch s {
	case SideUp:
		return "MULTUP"
	case SideDown:
		return "MULTDOWN"
	}
	return ""
}

type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// Signal результат скоринга одной закрытой свечи.
type Signal struct {
	Side   Side    `json:"side"`
	Score  float64 `json:"score"` // 0..1
	Reason string  `json:"reason"`
}

func NoSignal(reason string) Signal {
	return Signal{Side: SideNone, Score: 0, Reason: reason}
}

func (s Signal) Ok() bool { return s.Side == SideUp || s.Side == SideDown }

// Candidate прошедший все фильтры сигнал по инструменту.
type Candidate struct {
	Symbol     string
	Signal     Signal
	Candle     Candle
	Indicators IndicatorSet
}
