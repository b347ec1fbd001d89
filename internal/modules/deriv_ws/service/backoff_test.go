package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesUpToMax(t *testing.T) {
	b := NewBackoff(time.Second, 60*time.Second, 0)

	var got []time.Duration
	for i := 0; i < 9; i++ {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second, 60 * time.Second,
	}, got)
}

func TestBackoffJitterBoundsAndMonotonicBase(t *testing.T) {
	for _, r := range []float64{0, 0.5, 0.999} {
		b := NewBackoff(time.Second, 60*time.Second, 0.3)
		b.rnd = func() float64 { return r }

		prev := time.Duration(0)
		base := time.Second
		for i := 0; i < 10; i++ {
			d := b.Next()
			assert.GreaterOrEqual(t, d, base, "delay below base")
			assert.LessOrEqual(t, d, 60*time.Second)
			assert.LessOrEqual(t, float64(d), float64(base)*1.3+1)
			assert.GreaterOrEqual(t, d, prev/2)
			prev = d
			base *= 2
			if base > 60*time.Second {
				base = 60 * time.Second
			}
		}
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(time.Second, 60*time.Second, 0)
	b.Next()
	b.Next()
	b.Next()
	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}
