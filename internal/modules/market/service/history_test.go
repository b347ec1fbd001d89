package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derivws "deriv_bot/internal/modules/deriv_ws/service"
)

type scriptedRequester struct {
	replies  []string // "" => транспортная ошибка
	payloads []map[string]any
}

func (s *scriptedRequester) Request(_ context.Context, payload map[string]any) (*derivws.Response, error) {
	s.payloads = append(s.payloads, payload)
	if len(s.replies) == 0 {
		return nil, errors.New("no more replies")
	}
	raw := s.replies[0]
	s.replies = s.replies[1:]
	if raw == "" {
		return nil, derivws.ErrRequestTimeout
	}
	return derivws.ParseFrame([]byte(raw))
}

func TestFetchCandlesPrefersCandleStyle(t *testing.T) {
	r := &scriptedRequester{replies: []string{
		`{"msg_type":"candles","candles":[{"epoch":120,"open":2,"high":3,"low":1,"close":2.5},{"epoch":60,"open":1,"high":2,"low":0.5,"close":1.5}]}`,
	}}
	candles, err := FetchCandles(context.Background(), r, "R_75", 60, nil)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(60), candles[0].OpenTime)
	assert.Equal(t, int64(120), candles[1].OpenTime)
	assert.Equal(t, "candles", r.payloads[0]["style"])
	assert.EqualValues(t, 60, r.payloads[0]["granularity"])
}

func TestFetchCandlesFallsBackToTicks(t *testing.T) {
	r := &scriptedRequester{replies: []string{
		`{"msg_type":"candles","error":{"code":"InputValidationFailed","message":"granularity"}}`,
		`{"msg_type":"history","history":{"times":[61,0,30,59,90],"prices":[5,1,3,2,4]}}`,
	}}
	candles, err := FetchCandles(context.Background(), r, "R_75", 60, nil)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, int64(0), candles[0].OpenTime)
	assert.Equal(t, 1.0, candles[0].Open)
	assert.Equal(t, 3.0, candles[0].High)
	assert.Equal(t, 2.0, candles[0].Close)
	assert.Equal(t, int64(3), candles[0].Volume)

	assert.Equal(t, int64(60), candles[1].OpenTime)
	assert.Equal(t, 5.0, candles[1].Open)
	assert.Equal(t, 4.0, candles[1].Close)
}

func TestFetchCandlesAllAttemptsFail(t *testing.T) {
	r := &scriptedRequester{replies: []string{
		"",
		`{"msg_type":"history","error":{"code":"MarketIsClosed","message":"closed"}}`,
		`{"msg_type":"tick","tick":{"quote":1}}`,
	}}
	_, err := FetchCandles(context.Background(), r, "R_75", 60, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MarketIsClosed")
	assert.Len(t, r.payloads, 3)
}

func TestTicksToCandlesTruncatesMismatchedLengths(t *testing.T) {
	out := TicksToCandles("R_10", []int64{0, 1, 2}, []float64{1, 2}, 60)
	require.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0].Volume)
	assert.Nil(t, TicksToCandles("R_10", nil, nil, 60))
}

func TestDecodeTick(t *testing.T) {
	resp, err := derivws.ParseFrame([]byte(`{"msg_type":"tick","tick":{"symbol":"R_75","quote":1234.56,"epoch":1700000001},"subscription":{"id":"x"}}`))
	require.NoError(t, err)
	tk, ok, err := DecodeTick(resp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "R_75", tk.Symbol)
	assert.Equal(t, int64(1700000001), tk.Epoch)
	assert.Equal(t, 1234.56, tk.Price)

	resp, _ = derivws.ParseFrame([]byte(`{"msg_type":"forget","forget":1}`))
	_, ok, err = DecodeTick(resp)
	assert.NoError(t, err)
	assert.False(t, ok)
}
