package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
)

type memKillSwitch struct {
	mu sync.Mutex
	st models.KillSwitchState
}

func (k *memKillSwitch) Current() models.KillSwitchState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.st
}

func (k *memKillSwitch) Activate(reason string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.st.Enabled {
		k.st = models.KillSwitchState{Enabled: true, Reason: reason}
	}
	return nil
}

func (k *memKillSwitch) Deactivate(reason string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.st = models.KillSwitchState{Reason: reason}
	return nil
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListTrades(ctx context.Context, limit int) ([]models.TradeRow, error) {
	args := m.Called(limit)
	rows, _ := args.Get(0).([]models.TradeRow)
	return rows, args.Error(1)
}

func (m *MockStore) ListEvents(ctx context.Context, limit int) ([]models.Event, error) {
	args := m.Called(limit)
	rows, _ := args.Get(0).([]models.Event)
	return rows, args.Error(1)
}

func (m *MockStore) LogEvent(ctx context.Context, level models.EventLevel, typ, message string, data map[string]any) error {
	return m.Called(level, typ).Error(0)
}

type testAPI struct {
	state   *State
	metrics *Metrics
	ks      *memKillSwitch
	store   *MockStore
	srv     http.Handler
}

func newTestAPI() *testAPI {
	a := &testAPI{
		state:   NewState(),
		metrics: NewMetrics([]string{"R_75", "R_50"}),
		ks:      &memKillSwitch{},
		store:   &MockStore{},
	}
	a.srv = NewAPI(APIDeps{
		State:      a.state,
		Metrics:    a.metrics,
		KillSwitch: a.ks,
		Trades:     a.store,
		Events:     a.store,
	}, nil).Routes()
	return a
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	a.srv.ServeHTTP(w, req)
	return w
}

func TestProbes(t *testing.T) {
	a := newTestAPI()

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/livez", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, a.do(http.MethodGet, "/readyz", "").Code)

	a.state.SetReady(true)
	a.state.SetWSConnected(true)
	a.state.SetWSConnected(false)
	a.state.SetWSConnected(true)
	a.state.TouchTick(time.Unix(1700000000, 0))
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/readyz", "").Code)

	w := a.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["wsConnected"])
	assert.EqualValues(t, 1, body["reconnects"])
	assert.EqualValues(t, 1700000000, body["lastTickUnix"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI()
	a.metrics.SetConnected(true)
	a.metrics.SetBalance(1000, 1200)
	a.metrics.OnTick(models.Tick{Symbol: "R_50", Epoch: 60, Price: 101.25})
	a.metrics.OnCandle(models.Candle{Symbol: "R_50"}, models.IndicatorSet{RSI: helper.Ptr(55.0)})

	w := a.do(http.MethodGet, "/metrics?symbol=R_50", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap models.MetricsSnapshot
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &snap))
	assert.True(t, snap.Connected)
	assert.Equal(t, 101.25, *snap.LastTickPrice)
	assert.Equal(t, 1, snap.CandlesClosed)
	assert.Equal(t, 55.0, *snap.RSI)
	assert.Equal(t, 1000.0, *snap.Balance)
	assert.Equal(t, 1200.0, snap.PeakEquity)

	w = a.do(http.MethodGet, "/metrics", "")
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "R_75", snap.Symbol)

	var all []models.MetricsSnapshot
	require.NoError(t, sonic.Unmarshal(a.do(http.MethodGet, "/metrics?all=1", "").Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, "R_50", all[0].Symbol)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/metrics?symbol=XYZ", "").Code)
}

func TestKillSwitchEndpoints(t *testing.T) {
	a := newTestAPI()
	a.store.On("LogEvent", mock.Anything, "killswitch").Return(nil)

	w := a.do(http.MethodPost, "/killswitch/enable", `{"reason":"news"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, a.ks.Current().Enabled)
	assert.Equal(t, "news", a.ks.Current().Reason)

	w = a.do(http.MethodGet, "/killswitch", "")
	assert.Contains(t, w.Body.String(), `"enabled":true`)

	w = a.do(http.MethodPost, "/killswitch/disable", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, a.ks.Current().Enabled)
	assert.Equal(t, "manual_reset", a.ks.Current().Reason)

	a.store.AssertNumberOfCalls(t, "LogEvent", 2)
}

func TestKillSwitchEnableDefaultsReason(t *testing.T) {
	a := newTestAPI()
	a.store.On("LogEvent", mock.Anything, mock.Anything).Return(nil)

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/killswitch/enable", "").Code)
	assert.Equal(t, "manual_enable", a.ks.Current().Reason)
}

func TestTradesAndEvents(t *testing.T) {
	a := newTestAPI()
	a.store.On("ListTrades", 5).Return([]models.TradeRow{{ID: "t-1", Symbol: "R_75", Status: models.TradeClosed}}, nil)
	a.store.On("ListEvents", 200).Return(nil, nil)
	a.store.On("ListTrades", 7).Return(nil, errors.New("db down"))

	w := a.do(http.MethodGet, "/trades?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"t-1"`)

	w = a.do(http.MethodGet, "/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/trades?limit=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/events?limit=0", "").Code)
	assert.Equal(t, http.StatusInternalServerError, a.do(http.MethodGet, "/trades?limit=7", "").Code)
}

func TestMetricsWriterWritesSnapshot(t *testing.T) {
	m := NewMetrics([]string{"R_75"})
	m.OnTick(models.Tick{Symbol: "R_75", Price: 10})
	path := filepath.Join(t.TempDir(), "data", "metrics.json")

	w := NewMetricsWriter(m, path, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap models.MetricsSnapshot
	require.NoError(t, sonic.Unmarshal(raw, &snap))
	assert.Equal(t, "R_75", snap.Symbol)
	assert.Equal(t, 10.0, *snap.LastTickPrice)
}
