package service

import (
	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"

	"go.uber.org/zap"
)

// CloseHandler получает каждую закрытую свечу.
type CloseHandler func(models.Candle)

// Aggregator собирает тики в свечи одного таймфрейма, по слоту открытой
// свечи на инструмент. Не потокобезопасен: владеет им один цикл событий.
type Aggregator struct {
	tfSec   int64
	onClose CloseHandler
	log     *zap.Logger

	open map[string]*models.Candle
}

func NewAggregator(tfSec int64, onClose CloseHandler, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		tfSec:   tfSec,
		onClose: onClose,
		log:     log,
		open:    make(map[string]*models.Candle),
	}
}

// Update возвращает закрытую свечу, если тик открыл новый бакет.
func (a *Aggregator) Update(t models.Tick) *models.Candle {
	bucket := helper.FloorEpoch(t.Epoch, a.tfSec)
	cur, ok := a.open[t.Symbol]

	if !ok {
		a.open[t.Symbol] = a.newCandle(t, bucket)
		return nil
	}

	if bucket > cur.OpenTime {
		closed := *cur
		a.open[t.Symbol] = a.newCandle(t, bucket)
		a.emit(closed)
		return &closed
	}

	// тот же бакет или опоздавший тик: вливаем в текущую свечу
	cur.Close = t.Price
	if t.Price > cur.High {
		cur.High = t.Price
	}
	if t.Price < cur.Low {
		cur.Low = t.Price
	}
	cur.Volume++
	return nil
}

// Current копия открытой свечи инструмента.
func (a *Aggregator) Current(symbol string) (models.Candle, bool) {
	c, ok := a.open[symbol]
	if !ok {
		return models.Candle{}, false
	}
	return *c, true
}

func (a *Aggregator) newCandle(t models.Tick, bucket int64) *models.Candle {
	return &models.Candle{
		Symbol:       t.Symbol,
		TimeframeSec: a.tfSec,
		OpenTime:     bucket,
		Open:         t.Price,
		High:         t.Price,
		Low:          t.Price,
		Close:        t.Price,
		Volume:       1,
	}
}

func (a *Aggregator) emit(c models.Candle) {
	if a.onClose == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("[MARKET] close handler panic", zap.String("symbol", c.Symbol), zap.Any("panic", r))
		}
	}()
	a.onClose(c)
}
