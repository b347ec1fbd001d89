package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriv_bot/internal/models"
)

func candle(open, high, low, closePrice float64) models.Candle {
	return models.Candle{Symbol: "R_75", TimeframeSec: 60, Open: open, High: high, Low: low, Close: closePrice}
}

// синусоида с трендом, чтобы были и рост, и падение
func wave(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		base := 100 + float64(i)*0.05 + 2*math.Sin(float64(i)/3)
		out[i] = candle(base, base+0.6, base-0.4, base+0.2*math.Cos(float64(i)))
		out[i].OpenTime = int64(i * 60)
	}
	return out
}

func TestNewIndicatorsRejectsBadPeriods(t *testing.T) {
	_, err := NewIndicators(1, 50, 14, 14)
	assert.Error(t, err)
	_, err = NewIndicators(20, 50, 14, 0)
	assert.Error(t, err)
	_, err = NewIndicators(20, 50, 14, 14)
	assert.NoError(t, err)
}

func TestIndicatorsFirstBar(t *testing.T) {
	in, err := NewIndicators(3, 5, 3, 3)
	require.NoError(t, err)

	set := in.Update(candle(10, 12, 9, 11))
	require.True(t, set.Complete())
	assert.Equal(t, 11.0, *set.EMAFast)
	assert.Equal(t, 11.0, *set.EMASlow)
	assert.Equal(t, 3.0, *set.ATR) // high - low на первом баре
	assert.Equal(t, 50.0, *set.RSI)
}

func TestIndicatorsWilderSmoothing(t *testing.T) {
	in, err := NewIndicators(2, 3, 2, 2)
	require.NoError(t, err)

	in.Update(candle(10, 11, 9, 10))         // tr=2
	set := in.Update(candle(10, 14, 10, 13)) // tr=max(4,4,0)=4, gain=3
	assert.InDelta(t, (2.0*1+4)/2, *set.ATR, 1e-12)
	// avgGain=(0+3)/2=1.5, avgLoss=0 => 100
	assert.Equal(t, 100.0, *set.RSI)

	set = in.Update(candle(13, 13, 10, 11)) // loss=2
	// avgGain=0.75, avgLoss=1 => rs=0.75 => rsi=100-100/1.75
	assert.InDelta(t, 100-100/1.75, *set.RSI, 1e-9)
	// ema fast alpha=2/3
	assert.InDelta(t, 2.0/3*11+1.0/3*(2.0/3*13+1.0/3*10), *set.EMAFast, 1e-9)
}

func TestIndicatorsDeterministic(t *testing.T) {
	run := func() []models.IndicatorSet {
		in, _ := NewIndicators(20, 50, 14, 14)
		var out []models.IndicatorSet
		for _, c := range wave(120) {
			out = append(out, in.Update(c))
		}
		return out
	}
	a, b := run(), run()
	require.Len(t, a, len(b))
	for i := range a {
		assert.Equal(t, *a[i].EMAFast, *b[i].EMAFast)
		assert.Equal(t, *a[i].ATR, *b[i].ATR)
		assert.Equal(t, *a[i].RSI, *b[i].RSI)
	}
}

func TestRSIBoundsAndWarmup(t *testing.T) {
	in, _ := NewIndicators(20, 50, 14, 14)
	for i, c := range wave(200) {
		set := in.Update(c)
		if i+1 < 14 {
			assert.Equal(t, 50.0, *set.RSI, "bar %d", i+1)
		}
		assert.GreaterOrEqual(t, *set.RSI, 0.0)
		assert.LessOrEqual(t, *set.RSI, 100.0)
	}
}

func TestIsReady(t *testing.T) {
	in, _ := NewIndicators(3, 5, 4, 6)
	for i := 0; i < 5; i++ {
		in.Update(candle(1, 2, 0.5, 1.5))
		assert.False(t, in.IsReady())
	}
	in.Update(candle(1, 2, 0.5, 1.5))
	assert.True(t, in.IsReady())
}
