package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
	"deriv_bot/internal/notify"
)

type TradeStore interface {
	InsertTrade(ctx context.Context, row models.TradeRow) error
	CloseTrade(ctx context.Context, id string, exitTime time.Time, pnl, balanceAfter float64, contractID int64) error
	MarkUnknown(ctx context.Context, id string, contractID int64) error
	DeleteTrade(ctx context.Context, id string) error
	ListTrades(ctx context.Context, limit int) ([]models.TradeRow, error)
	RiskCounters(ctx context.Context) (models.RiskCounters, error)
}

type EventLog interface {
	LogEvent(ctx context.Context, level models.EventLevel, typ, message string, data map[string]any) error
}

type ContractExecutor interface {
	Execute(ctx context.Context, intent models.TradeIntent, multiplier int) (models.ExecutedTrade, error)
	IsMultiplier() bool
	ContractLabel() string
}

type MultiplierSource interface {
	Resolve(ctx context.Context, symbol string) int
}

type KillSwitchReader interface {
	Current() models.KillSwitchState
}

type RiskChecker interface {
	Check(s models.RiskSnapshot) models.RiskDecision
}

type OrchestratorOptions struct {
	QueueSize         int
	DryRun            bool
	PerformanceWindow int
}

type OrchestratorDeps struct {
	Store       TradeStore
	Events      EventLog
	Executor    ContractExecutor
	Multipliers MultiplierSource // nil для rise/fall
	KillSwitch  KillSwitchReader
	Risk        RiskChecker
	Account     *Account
	Notifier    notify.Notifier
}

// Orchestrator очередь намерений и один воркер, исполняющий их по очереди.
type Orchestrator struct {
	OrchestratorDeps
	opts OrchestratorOptions
	log  *zap.Logger
	now  func() time.Time

	queue    chan models.TradeIntent
	inFlight atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewOrchestrator(deps OrchestratorDeps, opts OrchestratorOptions, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 3
	}
	if opts.PerformanceWindow < 1 {
		opts.PerformanceWindow = 200
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Account == nil {
		deps.Account = NewAccount()
	}
	return &Orchestrator{
		OrchestratorDeps: deps,
		opts:             opts,
		log:              log.With(zap.String("component", "orchestrator")),
		now:              time.Now,
		queue:            make(chan models.TradeIntent, opts.QueueSize),
	}
}

// Enqueue не блокирует: при полной очереди намерение отбрасывается.
func (o *Orchestrator) Enqueue(intent models.TradeIntent) bool {
	select {
	case o.queue <- intent:
		return true
	default:
		o.log.Warn("[EXEC] queue full, intent dropped",
			zap.String("symbol", intent.Symbol),
			zap.String("side", string(intent.Side)),
			zap.Float64("stake", intent.Stake),
		)
		return false
	}
}

func (o *Orchestrator) QueueLen() int { return len(o.queue) }

func (o *Orchestrator) InFlight() bool { return o.inFlight.Load() }

// Start запускает воркер в фоне; повторный вызов ничего не делает.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done != nil {
		return
	}
	ctx, o.cancel = context.WithCancel(ctx)
	o.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		o.Run(ctx)
	}(o.done)
}

// Stop дожидается окончания текущего намерения (или ctx).
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "orchestrator stop")
	}
}

// Run цикл воркера. Выходит только между намерениями: начатое
// исполняется до конца даже после отмены ctx.
func (o *Orchestrator) Run(ctx context.Context) {
	o.log.Info("[EXEC] worker started", zap.Int("queue_size", cap(o.queue)), zap.Bool("dry_run", o.opts.DryRun))
	defer o.log.Info("[EXEC] worker stopped")
	work := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case intent := <-o.queue:
			o.Process(work, intent)
		}
	}
}

// Process полный цикл одного намерения.
func (o *Orchestrator) Process(ctx context.Context, in models.TradeIntent) {
	if ks := o.KillSwitch.Current(); ks.Enabled {
		o.log.Warn("[EXEC] kill switch enabled, intent skipped", zap.String("symbol", in.Symbol), zap.String("reason", ks.Reason))
		o.event(ctx, models.LevelWarn, "killswitch_skip", "Kill switch enabled, trade skipped", map[string]any{
			"symbol": in.Symbol,
			"side":   string(in.Side),
			"reason": ks.Reason,
		})
		return
	}

	snap, err := o.snapshot(ctx)
	if err != nil {
		o.log.Error("[EXEC] risk snapshot failed", zap.Error(err))
		o.event(ctx, models.LevelError, "trade_error", "Risk snapshot failed", map[string]any{
			"error":  err.Error(),
			"symbol": in.Symbol,
			"side":   string(in.Side),
			"stake":  in.Stake,
		})
		return
	}
	decision := o.Risk.Check(snap)
	if !decision.Allowed {
		o.log.Warn("[RISK] trade blocked",
			zap.String("symbol", in.Symbol),
			zap.String("reason", decision.Reason),
			zap.Int("cooldown_remaining_sec", decision.CooldownRemainingSec),
		)
		o.event(ctx, models.LevelWarn, "risk_block", "Risk firewall blocked trade", map[string]any{
			"symbol":                 in.Symbol,
			"side":                   string(in.Side),
			"reason":                 decision.Reason,
			"cooldown_remaining_sec": decision.CooldownRemainingSec,
		})
		return
	}

	if !o.inFlight.CompareAndSwap(false, true) {
		o.log.Warn("[EXEC] trade_in_flight_skip", zap.String("symbol", in.Symbol))
		return
	}
	defer o.inFlight.Store(false)

	if o.opts.DryRun {
		o.log.Info("[EXEC] dry run, trade not placed", zap.String("symbol", in.Symbol), zap.String("side", string(in.Side)), zap.Float64("stake", in.Stake))
		o.event(ctx, models.LevelInfo, "dry_run_skip", "Dry run: trade not placed", map[string]any{
			"symbol": in.Symbol,
			"side":   string(in.Side),
			"stake":  in.Stake,
			"score":  in.Score,
			"hint":   "set development.dry_run=false to trade",
		})
		return
	}

	o.trade(ctx, in, snap.Balance)
}

func (o *Orchestrator) snapshot(ctx context.Context) (models.RiskSnapshot, error) {
	equity, peak := o.Account.Equity()
	counters, err := o.Store.RiskCounters(ctx)
	if err != nil {
		return models.RiskSnapshot{}, errors.Wrap(err, "risk counters")
	}
	return models.RiskSnapshot{
		Balance:           equity,
		Equity:            equity,
		PeakEquity:        peak,
		DailyPnL:          counters.DailyPnL,
		TradesToday:       counters.TradesToday,
		ConsecutiveLosses: counters.ConsecutiveLosses,
		LastCloseTime:     counters.LastCloseTime,
	}, nil
}

func (o *Orchestrator) trade(ctx context.Context, in models.TradeIntent, balance float64) {
	id := uuid.NewString()
	reasons, err := sonic.MarshalString(map[string]any{"reason": in.Reason, "score": in.Score})
	if err != nil {
		reasons = "{}"
	}
	row := models.TradeRow{
		ID:            id,
		Symbol:        in.Symbol,
		Side:          in.Side,
		Status:        models.TradeOpen,
		EntryTime:     o.now().UTC(),
		EntryPrice:    in.EntryPrice,
		Stake:         in.Stake,
		Score:         int(helper.Clamp(in.Score, 0, 1) * 100),
		ReasonsJSON:   reasons,
		BalanceBefore: balance,
		TakeProfit:    in.TakeProfit,
		StopLoss:      in.StopLoss,
	}
	if err := o.Store.InsertTrade(ctx, row); err != nil {
		o.fail(ctx, in, id, errors.Wrap(err, "insert trade"), false)
		return
	}

	label := o.Executor.ContractLabel()
	o.event(ctx, models.LevelInfo, "trade_open", "Trade opened ("+label+")", map[string]any{
		"trade_id":      id,
		"symbol":        in.Symbol,
		"side":          string(in.Side),
		"stake":         in.Stake,
		"score":         in.Score,
		"take_profit":   in.TakeProfit,
		"stop_loss":     in.StopLoss,
		"contract_type": label,
	})
	o.log.Info("[EXEC] trade opened",
		zap.String("trade_id", id),
		zap.String("symbol", in.Symbol),
		zap.String("side", string(in.Side)),
		zap.Float64("stake", in.Stake),
		zap.Float64("score", in.Score),
	)

	multiplier := 0
	if o.Executor.IsMultiplier() && o.Multipliers != nil {
		multiplier = o.Multipliers.Resolve(ctx, in.Symbol)
	}

	o.Account.Hold()
	defer o.Account.Release()
	res, err := o.Executor.Execute(ctx, in, multiplier)
	if err != nil {
		var st *SettlementTimeout
		if errors.As(err, &st) {
			o.unknown(ctx, in, id, st)
			return
		}
		o.fail(ctx, in, id, err, true)
		return
	}

	balanceAfter := o.Account.ApplyProfit(res.Profit)
	if err := o.Store.CloseTrade(ctx, id, o.now().UTC(), res.Profit, balanceAfter, res.ContractID); err != nil {
		o.log.Error("[EXEC] close trade failed", zap.String("trade_id", id), zap.Error(err))
	}
	o.event(ctx, models.LevelInfo, "trade_close", "Trade closed", map[string]any{
		"trade_id":    id,
		"contract_id": res.ContractID,
		"profit":      res.Profit,
		"is_win":      res.IsWin,
		"payout":      res.Payout,
	})
	o.log.Info("[EXEC] trade closed",
		zap.String("trade_id", id),
		zap.Int64("contract_id", res.ContractID),
		zap.Float64("profit", res.Profit),
		zap.Bool("is_win", res.IsWin),
		zap.Float64("balance", balanceAfter),
	)

	mark := "❌"
	if res.IsWin {
		mark = "✅"
	}
	o.Notifier.Sendf("%s %s %s\nСтавка: %.2f\nРезультат: %+.2f\nБаланс: %.2f",
		mark, in.Symbol, sideLabel(in.Side), in.Stake, res.Profit, balanceAfter)

	o.logPerformance(ctx)
}

func (o *Orchestrator) fail(ctx context.Context, in models.TradeIntent, id string, err error, rollback bool) {
	if rollback {
		if derr := o.Store.DeleteTrade(ctx, id); derr != nil {
			o.log.Error("[EXEC] rollback failed", zap.String("trade_id", id), zap.Error(derr))
		}
	}
	o.log.Error("[EXEC] trade failed", zap.String("trade_id", id), zap.String("symbol", in.Symbol), zap.Error(err))
	o.event(ctx, models.LevelError, "trade_error", "Trade execution failed", map[string]any{
		"error":    err.Error(),
		"trade_id": id,
		"symbol":   in.Symbol,
		"side":     string(in.Side),
		"stake":    in.Stake,
	})
	o.Notifier.Sendf("⚠️ Ошибка сделки %s %s: %v", in.Symbol, sideLabel(in.Side), err)
}

func (o *Orchestrator) unknown(ctx context.Context, in models.TradeIntent, id string, st *SettlementTimeout) {
	if err := o.Store.MarkUnknown(ctx, id, st.ContractID); err != nil {
		o.log.Error("[EXEC] mark unknown failed", zap.String("trade_id", id), zap.Error(err))
	}
	o.log.Warn("[EXEC] settlement not observed", zap.String("trade_id", id), zap.Int64("contract_id", st.ContractID), zap.Duration("waited", st.Waited))
	o.event(ctx, models.LevelWarn, "trade_unknown", "Contract settlement not observed", map[string]any{
		"trade_id":    id,
		"contract_id": st.ContractID,
		"symbol":      in.Symbol,
		"waited_sec":  st.Waited.Seconds(),
	})
	o.Notifier.Sendf("❓ Контракт %d (%s) не рассчитан за %s, статус unknown", st.ContractID, in.Symbol, st.Waited.Round(time.Second))
}

// logPerformance винрейт по последним закрытым сделкам.
func (o *Orchestrator) logPerformance(ctx context.Context) {
	rows, err := o.Store.ListTrades(ctx, o.opts.PerformanceWindow)
	if err != nil {
		o.log.Warn("[EXEC] performance query failed", zap.Error(err))
		return
	}
	var wins, losses int
	var total float64
	for _, r := range rows {
		if r.Status != models.TradeClosed || r.PnL == nil {
			continue
		}
		total += *r.PnL
		if *r.PnL > 0 {
			wins++
		} else {
			losses++
		}
	}
	n := wins + losses
	if n == 0 {
		return
	}
	o.log.Info("[EXEC] performance",
		zap.Int("trades", n),
		zap.Int("wins", wins),
		zap.Int("losses", losses),
		zap.Float64("winrate", float64(wins)/float64(n)),
		zap.Float64("pnl", helper.RoundMoney(total)),
	)
}

func (o *Orchestrator) event(ctx context.Context, level models.EventLevel, typ, msg string, data map[string]any) {
	if o.Events == nil {
		return
	}
	if err := o.Events.LogEvent(ctx, level, typ, msg, data); err != nil {
		o.log.Warn("[EXEC] event log failed", zap.String("type", typ), zap.Error(err))
	}
}

func sideLabel(s models.Side) string {
	switch s {
	case models.SideUp:
		return "▲ UP"
	case models.SideDown:
		return "▼ DOWN"
	}
	return string(s)
}
