package service

// emaState экспоненциальная средняя, стартует с первого значения.
type emaState struct {
	alpha  float64
	value  float64
	seeded bool
}

func newEMA(period int) emaState {
	return emaState{alpha: 2.0 / (float64(period) + 1)}
}

func (e *emaState) Update(price float64) float64 {
	if !e.seeded {
		e.value = price
		e.seeded = true
		return e.value
	}
	e.value = e.alpha*price + (1-e.alpha)*e.value
	return e.value
}

func (e *emaState) Value() float64 { return e.value }
