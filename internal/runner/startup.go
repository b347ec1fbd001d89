package runner

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
	derivws "deriv_bot/internal/modules/deriv_ws/service"
	market "deriv_bot/internal/modules/market/service"
)

func (e *Engine) startup(ctx context.Context) error {
	if err := e.Broker.WaitUntilConnected(ctx, e.opts.ConnectWait); err != nil {
		return errors.Wrap(err, "wait for deriv connection")
	}
	e.connected = true
	e.State.SetWSConnected(true)
	e.Metrics.SetConnected(true)

	bal, err := e.fetchBalance(ctx)
	if err != nil {
		return errors.Wrap(err, "initial balance")
	}
	e.applyBalance(bal)
	e.log.Info("[RUNNER] balance", zap.Float64("balance", bal))
	e.event(ctx, models.LevelInfo, "balance", "Balance fetched", map[string]any{
		"balance": bal,
		"env":     e.opts.Environment,
	})

	if e.opts.WarmupHistory && e.History != nil {
		e.warmup(ctx)
	}

	if e.opts.Multiplier && e.Multipliers != nil {
		picked := e.Multipliers.Warm(ctx, e.opts.Symbols)
		e.log.Info("[RUNNER] multipliers resolved", zap.Any("multipliers", picked))
	}

	for _, sym := range e.opts.Symbols {
		if err := e.subscribeTicks(ctx, sym); err != nil {
			return err
		}
	}

	e.State.SetReady(true)
	mode := "single"
	if e.multi() {
		mode = "multi"
	}
	e.log.Info("[RUNNER] engine started",
		zap.Strings("symbols", e.opts.Symbols),
		zap.String("mode", mode),
		zap.Bool("dry_run", e.opts.DryRun),
	)
	e.event(ctx, models.LevelInfo, "engine", "Engine started", map[string]any{
		"symbols": e.opts.Symbols,
		"mode":    mode,
		"dry_run": e.opts.DryRun,
	})
	e.Notifier.Sendf("🚀 Бот запущен: %v, режим %s, dry_run=%t", e.opts.Symbols, mode, e.opts.DryRun)
	return nil
}

// warmup прогоняет историю через пайплайны. Формирующийся бакет
// отбрасывается: его закроет живой агрегатор.
func (e *Engine) warmup(ctx context.Context) {
	history, err := e.History.Warmup(ctx, e.opts.Symbols)
	if err != nil {
		e.log.Warn("[RUNNER] warmup incomplete", zap.Error(err))
	}
	current := helper.FloorEpoch(e.now().Unix(), e.opts.TimeframeSec)
	for _, sym := range e.opts.Symbols {
		fed := 0
		for _, c := range history[sym] {
			if c.OpenTime >= current {
				continue
			}
			if _, _, ok := e.Hub.OnCandle(c); ok {
				fed++
			}
		}
		e.log.Info("[RUNNER] warmup fed", zap.String("symbol", sym), zap.Int("candles", fed))
	}
}

func (e *Engine) subscribeTicks(ctx context.Context, symbol string) error {
	ch, err := e.Broker.Subscribe(ctx, "ticks_"+symbol, market.TicksPayload(symbol))
	if err != nil {
		return errors.Wrapf(err, "subscribe ticks %s", symbol)
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.forwardTicks(ctx, symbol, ch)
	}()
	return nil
}

// forwardTicks сводит подписку инструмента в общий канал цикла.
func (e *Engine) forwardTicks(ctx context.Context, symbol string, ch <-chan *derivws.Response) {
	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-ch:
			if !ok {
				return
			}
			t, ok, err := market.DecodeTick(resp)
			if err != nil {
				e.log.Warn("[RUNNER] bad tick frame", zap.String("symbol", symbol), zap.Error(err))
				continue
			}
			if !ok {
				continue
			}
			if t.Symbol == "" {
				t.Symbol = symbol
			}
			select {
			case e.ticks <- t:
			case <-ctx.Done():
				return
			}
		}
	}
}
