package models

import "time"

type EventLevel string

const (
	LevelInfo  EventLevel = "INFO"
	LevelWarn  EventLevel = "WARNING"
	LevelError EventLevel = "ERROR"
)

type Event struct {
	TS      time.Time      `json:"ts"`
	Level   EventLevel     `json:"level"`
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

type MetricsSnapshot struct {
	Connected     bool      `json:"connected"`
	Symbol        string    `json:"symbol"`
	LastTickPrice *float64  `json:"last_tick_price"`
	CandlesClosed int       `json:"candles_closed"`
	EMAFast       *float64  `json:"ema_fast"`
	EMASlow       *float64  `json:"ema_slow"`
	ATR           *float64  `json:"atr"`
	RSI           *float64  `json:"rsi"`
	Balance       *float64  `json:"balance"`
	PeakEquity    float64   `json:"peak_equity"`
	UpdatedAt     time.Time `json:"updated_at"`
}
