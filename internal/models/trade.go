package models

import "time"

type TradeIntent struct {
	Symbol     string
	Side       Side
	Score      float64
	Stake      float64
	EntryPrice float64
	TakeProfit *float64
	StopLoss   *float64
	Reason     string
}

type ExecutedTrade struct {
	ContractID int64   `json:"contract_id"`
	Profit     float64 `json:"profit"`
	BuyPrice   float64 `json:"buy_price"`
	Payout     float64 `json:"payout"`
	IsWin      bool    `json:"is_win"`
}

type TradeStatus string

const (
	TradeOpen    TradeStatus = "open"
	TradeClosed  TradeStatus = "closed"
	TradeUnknown TradeStatus = "unknown" // расчёт контракта не дождались
)

type TradeRow struct {
	ID            string      `json:"id"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Status        TradeStatus `json:"status"`
	ContractID    *int64      `json:"contract_id"`
	EntryTime     time.Time   `json:"entry_time"`
	EntryPrice    float64     `json:"entry_price"`
	ExitTime      *time.Time  `json:"exit_time"`
	ExitPrice     *float64    `json:"exit_price"`
	PnL           *float64    `json:"pnl"`
	Stake         float64     `json:"stake"`
	Score         int         `json:"score"` // 0..100
	ReasonsJSON   string      `json:"reasons_json"`
	BalanceBefore float64     `json:"balance_before"`
	BalanceAfter  *float64    `json:"balance_after"`
	TakeProfit    *float64    `json:"take_profit"`
	StopLoss      *float64    `json:"stop_loss"`
}
