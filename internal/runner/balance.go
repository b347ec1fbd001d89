package runner

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type balanceFrame struct {
	Balance *struct {
		Balance  float64 `json:"balance"`
		Currency string  `json:"currency"`
	} `json:"balance"`
}

func (e *Engine) fetchBalance(ctx context.Context) (float64, error) {
	resp, err := e.Broker.Request(ctx, map[string]any{"balance": 1, "subscribe": 0})
	if err != nil {
		return 0, err
	}
	if err := resp.Err(); err != nil {
		return 0, err
	}
	var f balanceFrame
	if err := resp.Decode(&f); err != nil {
		return 0, err
	}
	if f.Balance == nil {
		return 0, errors.New("balance missing in response")
	}
	return f.Balance.Balance, nil
}

func (e *Engine) applyBalance(v float64) {
	e.Account.SetBalance(v)
	e.Metrics.SetBalance(v, e.Account.Peak())
}

func (e *Engine) refreshBalanceEvery(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.refreshBalance(ctx)
		}
	}
}

// refreshBalance не трогает баланс, если за время запроса сделка
// открылась или рассчиталась: её результат учтён воркером.
func (e *Engine) refreshBalance(ctx context.Context) {
	gen := e.Account.Generation()
	bal, err := e.fetchBalance(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.log.Warn("[RUNNER] balance refresh failed", zap.Error(err))
		}
		return
	}
	if !e.Account.SetBalanceSince(bal, gen) {
		e.log.Debug("[RUNNER] balance refresh skipped, trade in progress", zap.Float64("broker_balance", bal))
		return
	}
	e.Metrics.SetBalance(bal, e.Account.Peak())
	e.log.Debug("[RUNNER] balance refreshed", zap.Float64("balance", bal))
}
