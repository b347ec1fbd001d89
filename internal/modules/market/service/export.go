package service

import (
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"

	"deriv_bot/internal/models"
)

// CandleRow строка parquet-выгрузки истории.
type CandleRow struct {
	Symbol       string  `parquet:"symbol"`
	TimeframeSec int64   `parquet:"timeframe_sec"`
	OpenTime     int64   `parquet:"open_time"`
	Open         float64 `parquet:"open"`
	High         float64 `parquet:"high"`
	Low          float64 `parquet:"low"`
	Close        float64 `parquet:"close"`
	Volume       int64   `parquet:"volume"`
}

func toRows(candles []models.Candle) []CandleRow {
	rows := make([]CandleRow, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, CandleRow{
			Symbol:       c.Symbol,
			TimeframeSec: c.TimeframeSec,
			OpenTime:     c.OpenTime,
			Open:         c.Open,
			High:         c.High,
			Low:          c.Low,
			Close:        c.Close,
			Volume:       c.Volume,
		})
	}
	return rows
}

// WriteParquet пишет свечи в <dir>/<symbol>.parquet и возвращает путь.
func WriteParquet(dir, symbol string, candles []models.Candle) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "mkdir %s", dir)
	}
	path := filepath.Join(dir, symbol+".parquet")
	if err := parquet.WriteFile(path, toRows(candles)); err != nil {
		return "", errors.Wrapf(err, "write parquet %s", path)
	}
	return path, nil
}
