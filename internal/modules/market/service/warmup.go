package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"deriv_bot/internal/models"
)

// Warmuper параллельно тянет историю по списку инструментов.
type Warmuper struct {
	r     Requester
	tfSec int64
	log   *zap.Logger

	// ограничитель параллелизма, чтобы не упереться в rate limit брокера
	sem chan struct{}
}

func NewWarmuper(r Requester, tfSec int64, log *zap.Logger) *Warmuper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Warmuper{
		r:     r,
		tfSec: tfSec,
		log:   log,
		sem:   make(chan struct{}, 8),
	}
}

// Warmup возвращает историю по каждому инструменту. Ошибка по одному
// символу не мешает остальным; первая из них возвращается вместе с тем,
// что удалось загрузить.
func (w *Warmuper) Warmup(ctx context.Context, symbols []string) (map[string][]models.Candle, error) {
	out := make(map[string][]models.Candle, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, sym := range symbols {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-w.sem }()

			candles, err := FetchCandles(ctx, w.r, sym, w.tfSec, w.log)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				w.log.Warn("[MARKET] warmup failed", zap.String("symbol", sym), zap.Error(err))
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			out[sym] = candles
		}()
	}
	wg.Wait()

	w.log.Info("[MARKET] warmup done", zap.Int("symbols", len(out)), zap.Int("requested", len(symbols)))
	return out, firstErr
}
