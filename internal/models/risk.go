package models

import "time"

type RiskSnapshot struct {
	Balance           float64
	Equity            float64
	PeakEquity        float64
	DailyPnL          float64
	TradesToday       int
	ConsecutiveLosses int
	LastCloseTime     *time.Time
}

// RiskCounters счётчики журнала сделок, прочитанные одним снимком.
type RiskCounters struct {
	TradesToday       int
	DailyPnL          float64
	ConsecutiveLosses int
	LastCloseTime     *time.Time
}

type RiskDecision struct {
	Allowed              bool   `json:"allowed"`
	Reason               string `json:"reason"`
	CooldownRemainingSec int    `json:"cooldown_remaining_sec"`
}

type SizeDecision struct {
	Allowed     bool    `json:"allowed"`
	Stake       float64 `json:"stake"`
	RiskPercent float64 `json:"risk_percent"`
	Reason      string  `json:"reason"`
}

// TpSl денежные уровни для limit_order multiplier контракта.
type TpSl struct {
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
}

type KillSwitchState struct {
	Enabled     bool       `json:"enabled"`
	Reason      string     `json:"reason"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}
