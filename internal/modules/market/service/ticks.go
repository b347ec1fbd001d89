package service

import (
	"github.com/pkg/errors"

	"deriv_bot/internal/models"
	derivws "deriv_bot/internal/modules/deriv_ws/service"
)

type tickFrame struct {
	Tick *struct {
		Symbol string  `json:"symbol"`
		Quote  float64 `json:"quote"`
		Epoch  int64   `json:"epoch"`
	} `json:"tick"`
}

// DecodeTick разбирает push-кадр подписки ticks.
// ok=false для кадров без тика (например ответ с ошибкой).
func DecodeTick(resp *derivws.Response) (models.Tick, bool, error) {
	if err := resp.Err(); err != nil {
		return models.Tick{}, false, err
	}
	var f tickFrame
	if err := resp.Decode(&f); err != nil {
		return models.Tick{}, false, err
	}
	if f.Tick == nil {
		return models.Tick{}, false, nil
	}
	if f.Tick.Epoch <= 0 {
		return models.Tick{}, false, errors.Errorf("tick without epoch for %s", f.Tick.Symbol)
	}
	return models.Tick{Symbol: f.Tick.Symbol, Epoch: f.Tick.Epoch, Price: f.Tick.Quote}, true, nil
}

// TicksPayload запрос подписки на тики инструмента.
func TicksPayload(symbol string) map[string]any {
	return map[string]any{"ticks": symbol, "subscribe": 1}
}
