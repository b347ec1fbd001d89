package service

import (
	"math/rand/v2"
	"time"
)

// Backoff экспоненциальная задержка переподключения с джиттером.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64 // доля от текущей задержки, 0.3 => до +30%

	rnd     func() float64
	current time.Duration
}

func NewBackoff(initial, max time.Duration, jitter float64) *Backoff {
	return &Backoff{
		Initial: initial,
		Max:     max,
		Jitter:  jitter,
		rnd:     rand.Float64,
		current: initial,
	}
}

// Next задержка перед следующей попыткой; база удваивается до Max.
func (b *Backoff) Next() time.Duration {
	if b.current <= 0 {
		b.current = b.Initial
	}
	base := b.current
	delay := base
	if b.Jitter > 0 && b.rnd != nil {
		delay += time.Duration(b.rnd() * b.Jitter * float64(base))
	}
	if delay > b.Max {
		delay = b.Max
	}

	b.current = base * 2
	if b.current > b.Max {
		b.current = b.Max
	}
	return delay
}

func (b *Backoff) Reset() { b.current = b.Initial }
