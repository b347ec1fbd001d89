package runner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"deriv_bot/internal/models"
	derivws "deriv_bot/internal/modules/deriv_ws/service"
	health "deriv_bot/internal/modules/health/service"
	market "deriv_bot/internal/modules/market/service"
	risk "deriv_bot/internal/modules/risk/service"
	strategy "deriv_bot/internal/modules/strategy/service"
	"deriv_bot/internal/notify"
)

const (
	defaultSettleDelay    = 2 * time.Second
	defaultBalanceRefresh = 60 * time.Second
	defaultConnectWait    = 30 * time.Second
	minTimerSleep         = 500 * time.Millisecond
	eventWriteTimeout     = 5 * time.Second
	ticksBuffer           = 1024
)

type Broker interface {
	WaitUntilConnected(ctx context.Context, timeout time.Duration) error
	Request(ctx context.Context, payload map[string]any) (*derivws.Response, error)
	Subscribe(ctx context.Context, name string, payload map[string]any) (<-chan *derivws.Response, error)
	Events() <-chan derivws.ConnEvent
}

type HistoryLoader interface {
	Warmup(ctx context.Context, symbols []string) (map[string][]models.Candle, error)
}

type IntentQueue interface {
	Enqueue(intent models.TradeIntent) bool
}

type Balances interface {
	SetBalance(v float64)
	Generation() uint64
	SetBalanceSince(v float64, gen uint64) bool
	Balance() (float64, bool)
	Peak() float64
}

type MultiplierWarmer interface {
	Warm(ctx context.Context, symbols []string) map[string]int
}

type KillSwitchReader interface {
	Current() models.KillSwitchState
}

type EventLog interface {
	LogEvent(ctx context.Context, level models.EventLevel, typ, message string, data map[string]any) error
}

type Options struct {
	Symbols       []string
	TimeframeSec  int64
	Environment   string
	DryRun        bool
	WarmupHistory bool

	Multiplier    bool
	TakeProfitPct float64
	StopLossPct   float64

	ConnectWait    time.Duration
	BalanceRefresh time.Duration
	// пауза после границы таймфрейма, чтобы первый тик нового бакета успел закрыть свечу
	SettleDelay time.Duration
}

type Deps struct {
	Broker      Broker
	History     HistoryLoader // nil => без прогрева
	Hub         *strategy.Hub
	Sizer       risk.Sizer
	KillSwitch  KillSwitchReader
	Queue       IntentQueue
	Account     Balances
	Multipliers MultiplierWarmer // nil => rise/fall
	State       *health.State
	Metrics     *health.Metrics
	Events      EventLog
	Notifier    notify.Notifier
}

// Engine цикл событий: тики -> свечи -> стратегия -> очередь исполнения.
// Агрегатор и пайплайны принадлежат одной горутине loop.
type Engine struct {
	Deps
	opts Options
	log  *zap.Logger

	agg   *market.Aggregator
	ticks chan models.Tick
	now   func() time.Time

	connected  bool
	lastBucket int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newEngine(deps Deps, opts Options, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	if opts.BalanceRefresh <= 0 {
		opts.BalanceRefresh = defaultBalanceRefresh
	}
	if opts.ConnectWait <= 0 {
		opts.ConnectWait = defaultConnectWait
	}
	log = log.With(zap.String("component", "runner"))
	return &Engine{
		Deps:  deps,
		opts:  opts,
		log:   log,
		agg:   market.NewAggregator(opts.TimeframeSec, nil, log),
		ticks: make(chan models.Tick, ticksBuffer),
		now:   time.Now,
	}
}

func (e *Engine) multi() bool { return len(e.opts.Symbols) >= 2 }

// Start поднимает движок в фоне. onFail вызывается, если старт не удался.
func (e *Engine) Start(ctx context.Context, onFail func(error)) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.Run(ctx); err != nil && ctx.Err() == nil {
			e.log.Error("[RUNNER] engine failed", zap.Error(err))
			if onFail != nil {
				onFail(err)
			}
		}
	}()
}

func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.log.Info("[RUNNER] engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run старт и цикл событий до отмены ctx.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.startup(ctx); err != nil {
		return err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.refreshBalanceEvery(ctx, e.opts.BalanceRefresh)
	}()

	e.loop(ctx)
	return nil
}

func (e *Engine) loop(ctx context.Context) {
	var boundary <-chan time.Time
	var timer *time.Timer
	if e.multi() {
		timer = time.NewTimer(e.untilBoundary())
		defer timer.Stop()
		boundary = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-e.ticks:
			e.onTick(t)
		case ev := <-e.Broker.Events():
			e.onConnEvent(ctx, ev)
		case <-boundary:
			e.onBoundary(e.now())
			timer.Reset(e.untilBoundary())
		}
	}
}

func (e *Engine) onTick(t models.Tick) {
	e.Metrics.OnTick(t)
	e.State.TouchTick(time.Unix(t.Epoch, 0))
	e.log.Debug("[RUNNER] tick", zap.String("symbol", t.Symbol), zap.Float64("price", t.Price))

	if closed := e.agg.Update(t); closed != nil {
		e.onCandle(*closed)
	}
}

func (e *Engine) event(ctx context.Context, level models.EventLevel, typ, msg string, data map[string]any) {
	if e.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventWriteTimeout)
	defer cancel()
	if err := e.Events.LogEvent(ctx, level, typ, msg, data); err != nil {
		e.log.Warn("[RUNNER] event log failed", zap.String("type", typ), zap.Error(err))
	}
}
