package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriv_bot/internal/models"
)

func tick(epoch int64, price float64) models.Tick {
	return models.Tick{Symbol: "R_75", Epoch: epoch, Price: price}
}

func TestAggregatorBuildsOneMinuteCandle(t *testing.T) {
	var closed []models.Candle
	agg := NewAggregator(60, func(c models.Candle) { closed = append(closed, c) }, nil)

	assert.Nil(t, agg.Update(tick(0, 100)))
	assert.Nil(t, agg.Update(tick(30, 102)))
	assert.Nil(t, agg.Update(tick(59, 99)))

	got := agg.Update(tick(60, 101))
	require.NotNil(t, got)
	assert.Equal(t, models.Candle{
		Symbol: "R_75", TimeframeSec: 60, OpenTime: 0,
		Open: 100, High: 102, Low: 99, Close: 99, Volume: 3,
	}, *got)
	require.Len(t, closed, 1)
	assert.Equal(t, *got, closed[0])

	cur, ok := agg.Current("R_75")
	require.True(t, ok)
	assert.Equal(t, int64(60), cur.OpenTime)
	assert.Equal(t, 101.0, cur.Open)
	assert.Equal(t, int64(1), cur.Volume)
}

func TestAggregatorLateTickFoldsIntoCurrent(t *testing.T) {
	agg := NewAggregator(60, nil, nil)
	agg.Update(tick(120, 100))
	assert.Nil(t, agg.Update(tick(65, 90)))

	cur, _ := agg.Current("R_75")
	assert.Equal(t, int64(120), cur.OpenTime)
	assert.Equal(t, 90.0, cur.Low)
	assert.Equal(t, 90.0, cur.Close)
	assert.Equal(t, int64(2), cur.Volume)
}

func TestAggregatorKeepsInstrumentsApart(t *testing.T) {
	agg := NewAggregator(60, nil, nil)
	agg.Update(models.Tick{Symbol: "R_50", Epoch: 10, Price: 1})
	agg.Update(models.Tick{Symbol: "R_100", Epoch: 10, Price: 2})

	assert.Nil(t, agg.Update(models.Tick{Symbol: "R_50", Epoch: 20, Price: 3}))
	closed := agg.Update(models.Tick{Symbol: "R_100", Epoch: 70, Price: 4})
	require.NotNil(t, closed)
	assert.Equal(t, "R_100", closed.Symbol)
	assert.Equal(t, 2.0, closed.Close)

	r50, _ := agg.Current("R_50")
	assert.Equal(t, int64(2), r50.Volume)
}

func TestAggregatorSurvivesPanickingHandler(t *testing.T) {
	agg := NewAggregator(60, func(models.Candle) { panic("boom") }, nil)
	agg.Update(tick(0, 1))

	var closed *models.Candle
	require.NotPanics(t, func() { closed = agg.Update(tick(60, 2)) })
	require.NotNil(t, closed)

	cur, _ := agg.Current("R_75")
	assert.Equal(t, int64(60), cur.OpenTime)
	assert.Equal(t, 2.0, cur.Open)
}

func TestCandleInvariantHolds(t *testing.T) {
	var closed []models.Candle
	agg := NewAggregator(5, func(c models.Candle) { closed = append(closed, c) }, nil)
	prices := []float64{10, 12, 9, 11, 15, 8, 8.5, 13, 7, 20, 19, 18}
	for i, p := range prices {
		agg.Update(tick(int64(i*2), p))
	}
	require.NotEmpty(t, closed)
	for _, c := range closed {
		assert.LessOrEqual(t, c.Low, c.Open)
		assert.LessOrEqual(t, c.Low, c.Close)
		assert.GreaterOrEqual(t, c.High, c.Open)
		assert.GreaterOrEqual(t, c.High, c.Close)
	}
}
