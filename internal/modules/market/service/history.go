package service

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
	derivws "deriv_bot/internal/modules/deriv_ws/service"
)

type Requester interface {
	Request(ctx context.Context, payload map[string]any) (*derivws.Response, error)
}

type historyFrame struct {
	Candles []struct {
		Epoch int64   `json:"epoch"`
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	} `json:"candles"`
	History *struct {
		Prices []float64 `json:"prices"`
		Times  []int64   `json:"times"`
	} `json:"history"`
}

type historyAttempt struct {
	payload     map[string]any
	historyOnly bool
}

// FetchCandles тянет историю: сначала готовые свечи, потом тики
// (собираются в свечи теми же правилами), потом ticks без подписки.
func FetchCandles(ctx context.Context, r Requester, symbol string, tfSec int64, log *zap.Logger) ([]models.Candle, error) {
	if log == nil {
		log = zap.NewNop()
	}
	attempts := []historyAttempt{
		{payload: map[string]any{"ticks_history": symbol, "end": "latest", "style": "candles", "granularity": tfSec}},
		{payload: map[string]any{"ticks_history": symbol, "end": "latest", "style": "ticks"}},
		{payload: map[string]any{"ticks": symbol, "subscribe": 0}, historyOnly: true},
	}

	var lastErr error
	for i, a := range attempts {
		resp, err := r.Request(ctx, a.payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			log.Debug("[MARKET] history attempt failed", zap.Int("attempt", i), zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if perr := resp.Err(); perr != nil {
			lastErr = perr
			log.Debug("[MARKET] history attempt rejected", zap.Int("attempt", i), zap.String("symbol", symbol), zap.Error(perr))
			continue
		}

		var f historyFrame
		if err := resp.Decode(&f); err != nil {
			lastErr = err
			continue
		}
		hasHistory := f.History != nil && len(f.History.Times) > 0
		if a.historyOnly && !hasHistory {
			continue
		}
		if !a.historyOnly && len(f.Candles) == 0 && !hasHistory {
			continue
		}

		if len(f.Candles) > 0 {
			out := make([]models.Candle, 0, len(f.Candles))
			for _, c := range f.Candles {
				if c.Epoch <= 0 {
					continue
				}
				out = append(out, models.Candle{
					Symbol:       symbol,
					TimeframeSec: tfSec,
					OpenTime:     helper.FloorEpoch(c.Epoch, tfSec),
					Open:         c.Open,
					High:         c.High,
					Low:          c.Low,
					Close:        c.Close,
				})
			}
			sort.Slice(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
			if len(out) > 0 {
				log.Info("[MARKET] history loaded", zap.String("symbol", symbol), zap.String("style", "candles"), zap.Int("candles", len(out)))
				return out, nil
			}
		}

		if f.History != nil {
			out := TicksToCandles(symbol, f.History.Times, f.History.Prices, tfSec)
			log.Info("[MARKET] history loaded", zap.String("symbol", symbol), zap.String("style", "ticks"),
				zap.Int("ticks", len(f.History.Times)), zap.Int("candles", len(out)))
			return out, nil
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no data after all attempts")
	}
	return nil, errors.Wrapf(lastErr, "ticks_history %s", symbol)
}

// TicksToCandles группирует тики по бакетам таймфрейма. Длины обрезаются
// до общей, порядок входа не важен.
func TicksToCandles(symbol string, times []int64, prices []float64, tfSec int64) []models.Candle {
	n := min(len(times), len(prices))
	if n == 0 {
		return nil
	}
	ticks := make([]models.Tick, n)
	for i := 0; i < n; i++ {
		ticks[i] = models.Tick{Symbol: symbol, Epoch: times[i], Price: prices[i]}
	}
	sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].Epoch < ticks[j].Epoch })

	var out []models.Candle
	agg := NewAggregator(tfSec, func(c models.Candle) { out = append(out, c) }, nil)
	for _, t := range ticks {
		agg.Update(t)
	}
	if last, ok := agg.Current(symbol); ok {
		out = append(out, last)
	}
	return out
}
