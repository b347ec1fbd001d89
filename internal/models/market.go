package models

import "time"

type Tick struct {
	Symbol string
	Epoch  int64 // unix seconds
	Price  float64
}

type Candle struct {
	Symbol       string  `json:"symbol" parquet:"symbol"`
	TimeframeSec int64   `json:"timeframe_sec" parquet:"timeframe_sec"`
	OpenTime     int64   `json:"open_time" parquet:"open_time"` // unix seconds, начало бакета
	Open         float64 `json:"open" parquet:"open"`
	High         float64 `json:"high" parquet:"high"`
	Low          float64 `json:"low" parquet:"low"`
	Close        float64 `json:"close" parquet:"close"`
	Volume       int64   `json:"volume" parquet:"volume"` // число тиков
}

func (c Candle) Start() time.Time { return time.Unix(c.OpenTime, 0).UTC() }

// IndicatorSet значения отсутствуют (nil), пока индикатор не посчитан.
type IndicatorSet struct {
	EMAFast *float64 `json:"ema_fast"`
	EMASlow *float64 `json:"ema_slow"`
	ATR     *float64 `json:"atr"`
	RSI     *float64 `json:"rsi"`
}

func (s IndicatorSet) Complete() bool {
	return s.EMAFast != nil && s.EMASlow != nil && s.ATR != nil && s.RSI != nil
}
