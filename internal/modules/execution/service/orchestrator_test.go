package service

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
	"deriv_bot/internal/notify"
)

type storeMock struct{ mock.Mock }

func (m *storeMock) InsertTrade(ctx context.Context, row models.TradeRow) error {
	return m.Called(row).Error(0)
}

func (m *storeMock) CloseTrade(ctx context.Context, id string, exitTime time.Time, pnl, balanceAfter float64, contractID int64) error {
	return m.Called(id, pnl, balanceAfter, contractID).Error(0)
}

func (m *storeMock) MarkUnknown(ctx context.Context, id string, contractID int64) error {
	return m.Called(id, contractID).Error(0)
}

func (m *storeMock) DeleteTrade(ctx context.Context, id string) error {
	return m.Called(id).Error(0)
}

func (m *storeMock) ListTrades(ctx context.Context, limit int) ([]models.TradeRow, error) {
	args := m.Called(limit)
	rows, _ := args.Get(0).([]models.TradeRow)
	return rows, args.Error(1)
}

func (m *storeMock) RiskCounters(ctx context.Context) (models.RiskCounters, error) {
	args := m.Called()
	return args.Get(0).(models.RiskCounters), args.Error(1)
}

type executorMock struct {
	mock.Mock
	multiplier bool
}

func (m *executorMock) Execute(ctx context.Context, intent models.TradeIntent, multiplier int) (models.ExecutedTrade, error) {
	args := m.Called(intent.Symbol, multiplier)
	return args.Get(0).(models.ExecutedTrade), args.Error(1)
}

func (m *executorMock) IsMultiplier() bool    { return m.multiplier }
func (m *executorMock) ContractLabel() string { return "Rise/Fall 1m" }

type eventRecorder struct {
	events []models.Event
}

func (r *eventRecorder) LogEvent(_ context.Context, level models.EventLevel, typ, message string, data map[string]any) error {
	r.events = append(r.events, models.Event{Level: level, Type: typ, Message: message, Data: data})
	return nil
}

func (r *eventRecorder) types() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *eventRecorder) find(typ string) models.Event {
	for _, e := range r.events {
		if e.Type == typ {
			return e
		}
	}
	return models.Event{}
}

type staticKillSwitch struct{ state models.KillSwitchState }

func (k staticKillSwitch) Current() models.KillSwitchState { return k.state }

type staticRisk struct{ decision models.RiskDecision }

func (r staticRisk) Check(models.RiskSnapshot) models.RiskDecision { return r.decision }

type staticMultiplier int

func (s staticMultiplier) Resolve(context.Context, string) int { return int(s) }

type fixture struct {
	store  *storeMock
	exec   *executorMock
	events *eventRecorder
	notes  *notify.Recorder
	acct   *Account
	orch   *Orchestrator
}

func newFixture(t *testing.T, opts OrchestratorOptions, ks models.KillSwitchState, decision models.RiskDecision) *fixture {
	t.Helper()
	f := &fixture{
		store:  &storeMock{},
		exec:   &executorMock{},
		events: &eventRecorder{},
		notes:  &notify.Recorder{},
		acct:   NewAccount(),
	}
	f.acct.SetBalance(1000)
	f.orch = NewOrchestrator(OrchestratorDeps{
		Store:      f.store,
		Events:     f.events,
		Executor:   f.exec,
		KillSwitch: staticKillSwitch{ks},
		Risk:       staticRisk{decision},
		Account:    f.acct,
		Notifier:   f.notes,
	}, opts, nil)
	return f
}

func (f *fixture) expectSnapshot() {
	f.store.On("RiskCounters").Return(models.RiskCounters{TradesToday: 2}, nil)
}

var allow = models.RiskDecision{Allowed: true, Reason: "ok"}

func intent() models.TradeIntent {
	return models.TradeIntent{Symbol: "R_75", Side: models.SideUp, Score: 0.8123, Stake: 10, EntryPrice: 101.5, Reason: "ok"}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	f := newFixture(t, OrchestratorOptions{QueueSize: 3}, models.KillSwitchState{}, allow)
	for i := 0; i < 3; i++ {
		require.True(t, f.orch.Enqueue(intent()))
	}
	assert.False(t, f.orch.Enqueue(intent()))
	assert.Equal(t, 3, f.orch.QueueLen())
}

func TestProcessSuccessClosesTrade(t *testing.T) {
	f := newFixture(t, OrchestratorOptions{}, models.KillSwitchState{}, allow)
	f.expectSnapshot()

	var inserted models.TradeRow
	f.store.On("InsertTrade", mock.Anything).Run(func(args mock.Arguments) {
		inserted = args.Get(0).(models.TradeRow)
	}).Return(nil)
	f.exec.On("Execute", "R_75", 0).Return(models.ExecutedTrade{ContractID: 42, Profit: 8.5, BuyPrice: 10, Payout: 18.5, IsWin: true}, nil)
	f.store.On("CloseTrade", mock.Anything, 8.5, 1008.5, int64(42)).Return(nil)
	f.store.On("ListTrades", 200).Return([]models.TradeRow{
		{Status: models.TradeClosed, PnL: helper.Ptr(8.5)},
		{Status: models.TradeClosed, PnL: helper.Ptr(-10.0)},
	}, nil)

	f.orch.Process(context.Background(), intent())

	f.store.AssertExpectations(t)
	f.exec.AssertExpectations(t)
	f.store.AssertNotCalled(t, "DeleteTrade", mock.Anything)

	assert.Equal(t, models.TradeOpen, inserted.Status)
	assert.Equal(t, 81, inserted.Score)
	assert.Equal(t, 1000.0, inserted.BalanceBefore)
	assert.JSONEq(t, `{"reason":"ok","score":0.8123}`, inserted.ReasonsJSON)

	assert.Equal(t, []string{"trade_open", "trade_close"}, f.events.types())
	assert.Equal(t, "Trade opened (Rise/Fall 1m)", f.events.find("trade_open").Message)
	assert.Equal(t, inserted.ID, f.events.find("trade_close").Data["trade_id"])

	bal, ok := f.acct.Balance()
	require.True(t, ok)
	assert.Equal(t, 1008.5, bal)
	require.Len(t, f.notes.Messages(), 1)
	assert.Contains(t, f.notes.Messages()[0], "+8.50")
	assert.False(t, f.orch.InFlight())
}

func TestProcessExecutionErrorRollsBack(t *testing.T) {
	f := newFixture(t, OrchestratorOptions{}, models.KillSwitchState{}, allow)
	f.expectSnapshot()

	var id string
	f.store.On("InsertTrade", mock.Anything).Run(func(args mock.Arguments) {
		id = args.Get(0).(models.TradeRow).ID
	}).Return(nil)
	f.exec.On("Execute", "R_75", 0).Return(models.ExecutedTrade{}, errors.New("buy_error: deriv: InsufficientBalance: no money"))
	f.store.On("DeleteTrade", mock.Anything).Return(nil)

	f.orch.Process(context.Background(), intent())

	f.store.AssertCalled(t, "DeleteTrade", id)
	f.store.AssertNotCalled(t, "CloseTrade", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{"trade_open", "trade_error"}, f.events.types())
	ev := f.events.find("trade_error")
	assert.Equal(t, models.LevelError, ev.Level)
	assert.Equal(t, id, ev.Data["trade_id"])
	assert.Contains(t, ev.Data["error"], "buy_error")

	bal, _ := f.acct.Balance()
	assert.Equal(t, 1000.0, bal)
	assert.Len(t, f.notes.Messages(), 1)
	assert.False(t, f.orch.InFlight())
}

func TestProcessSettlementTimeoutMarksUnknown(t *testing.T) {
	f := newFixture(t, OrchestratorOptions{}, models.KillSwitchState{}, allow)
	f.expectSnapshot()

	var id string
	f.store.On("InsertTrade", mock.Anything).Run(func(args mock.Arguments) {
		id = args.Get(0).(models.TradeRow).ID
	}).Return(nil)
	f.exec.On("Execute", "R_75", 0).Return(models.ExecutedTrade{ContractID: 99},
		&SettlementTimeout{ContractID: 99, Waited: 3 * time.Minute})
	f.store.On("MarkUnknown", mock.Anything, int64(99)).Return(nil)

	f.orch.Process(context.Background(), intent())

	f.store.AssertCalled(t, "MarkUnknown", id, int64(99))
	f.store.AssertNotCalled(t, "DeleteTrade", mock.Anything)
	assert.Equal(t, []string{"trade_open", "trade_unknown"}, f.events.types())
}

func TestProcessDryRunSkipsBroker(t *testing.T) {
	f := newFixture(t, OrchestratorOptions{DryRun: true}, models.KillSwitchState{}, allow)
	f.expectSnapshot()

	f.orch.Process(context.Background(), intent())

	f.exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "InsertTrade", mock.Anything)
	require.Equal(t, []string{"dry_run_skip"}, f.events.types())
	data := f.events.find("dry_run_skip").Data
	assert.Equal(t, "R_75", data["symbol"])
	assert.Equal(t, 10.0, data["stake"])
	assert.Contains(t, data, "hint")
	assert.False(t, f.orch.InFlight())
}

func TestProcessKillSwitchSkips(t *testing.T) {
	f := newFixture(t, OrchestratorOptions{}, models.KillSwitchState{Enabled: true, Reason: "manual_enable"}, allow)

	f.orch.Process(context.Background(), intent())

	f.store.AssertNotCalled(t, "RiskCounters")
	f.exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	assert.Equal(t, []string{"killswitch_skip"}, f.events.types())
}

func TestProcessRiskBlock(t *testing.T) {
	f := newFixture(t, OrchestratorOptions{}, models.KillSwitchState{},
		models.RiskDecision{Reason: "cooldown_after_consecutive_losses", CooldownRemainingSec: 1200})
	f.expectSnapshot()

	f.orch.Process(context.Background(), intent())

	f.store.AssertNotCalled(t, "InsertTrade", mock.Anything)
	require.Equal(t, []string{"risk_block"}, f.events.types())
	ev := f.events.find("risk_block")
	assert.Equal(t, "cooldown_after_consecutive_losses", ev.Data["reason"])
	assert.Equal(t, 1200, ev.Data["cooldown_remaining_sec"])
}

func TestProcessSkipsWhileInFlight(t *testing.T) {
	f := newFixture(t, OrchestratorOptions{}, models.KillSwitchState{}, allow)
	f.expectSnapshot()
	f.orch.inFlight.Store(true)

	f.orch.Process(context.Background(), intent())

	f.store.AssertNotCalled(t, "InsertTrade", mock.Anything)
	assert.Empty(t, f.events.types())
	assert.True(t, f.orch.InFlight())
}

func TestProcessMultiplierUsesResolver(t *testing.T) {
	f := newFixture(t, OrchestratorOptions{}, models.KillSwitchState{}, allow)
	f.exec.multiplier = true
	f.orch.Multipliers = staticMultiplier(100)
	f.expectSnapshot()

	f.store.On("InsertTrade", mock.Anything).Return(nil)
	f.exec.On("Execute", "R_75", 100).Return(models.ExecutedTrade{ContractID: 1, Profit: -10}, nil)
	f.store.On("CloseTrade", mock.Anything, -10.0, 990.0, int64(1)).Return(nil)
	f.store.On("ListTrades", 200).Return(nil, nil)

	f.orch.Process(context.Background(), intent())

	f.exec.AssertExpectations(t)
	assert.Equal(t, 1000.0, f.acct.Peak())
}

func TestWorkerRunsQueuedIntentsInOrder(t *testing.T) {
	f := newFixture(t, OrchestratorOptions{DryRun: true}, models.KillSwitchState{}, allow)
	f.expectSnapshot()

	first, second := intent(), intent()
	second.Symbol = "R_50"
	require.True(t, f.orch.Enqueue(first))
	require.True(t, f.orch.Enqueue(second))

	f.orch.Start(context.Background())
	require.Eventually(t, func() bool { return f.orch.QueueLen() == 0 && !f.orch.InFlight() }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.orch.Stop(ctx))

	require.Len(t, f.events.events, 2)
	assert.Equal(t, "R_75", f.events.events[0].Data["symbol"])
	assert.Equal(t, "R_50", f.events.events[1].Data["symbol"])
}
