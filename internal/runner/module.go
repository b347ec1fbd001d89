package runner

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"deriv_bot/internal/modules/config"
	derivws "deriv_bot/internal/modules/deriv_ws/service"
	execution "deriv_bot/internal/modules/execution/service"
	health "deriv_bot/internal/modules/health/service"
	market "deriv_bot/internal/modules/market/service"
	risk "deriv_bot/internal/modules/risk/service"
	storage "deriv_bot/internal/modules/storage/service"
	strategy "deriv_bot/internal/modules/strategy/service"
	"deriv_bot/internal/notify"
)

type engineParams struct {
	fx.In

	Cfg          *config.Config
	Log          *zap.Logger
	Client       *derivws.Client
	Warmuper     *market.Warmuper
	Hub          *strategy.Hub
	Sizer        risk.Sizer
	KillSwitch   *risk.KillSwitch
	Orchestrator *execution.Orchestrator
	Account      *execution.Account
	Resolver     *execution.MultiplierResolver
	State        *health.State
	Metrics      *health.Metrics
	Events       *storage.EventRepository
	Notifier     notify.Notifier
}

func NewEngine(p engineParams) *Engine {
	cfg := p.Cfg
	deps := Deps{
		Broker:     p.Client,
		Hub:        p.Hub,
		Sizer:      p.Sizer,
		KillSwitch: p.KillSwitch,
		Queue:      p.Orchestrator,
		Account:    p.Account,
		State:      p.State,
		Metrics:    p.Metrics,
		Events:     p.Events,
		Notifier:   p.Notifier,
	}
	if cfg.Development.WarmupHistory {
		deps.History = p.Warmuper
	}
	if cfg.IsMultiplier() {
		deps.Multipliers = p.Resolver
	}
	mc := cfg.Trading.Multiplier
	return newEngine(deps, Options{
		Symbols:        cfg.ActiveSymbols(),
		TimeframeSec:   cfg.Trading.TimeframeSec,
		Environment:    cfg.Environment,
		DryRun:         cfg.Development.DryRun,
		WarmupHistory:  cfg.Development.WarmupHistory,
		Multiplier:     cfg.IsMultiplier(),
		TakeProfitPct:  mc.TakeProfitPercent,
		StopLossPct:    mc.StopLossPercent,
		ConnectWait:    config.Seconds(cfg.Deriv.ConnectTimeoutSec),
		BalanceRefresh: config.Seconds(cfg.Monitoring.BalanceRefreshSec),
	}, p.Log)
}

// Module цикл событий движка; падение старта гасит всё приложение.
func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(NewEngine),
		fx.Invoke(func(lc fx.Lifecycle, e *Engine, sd fx.Shutdowner) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					e.Start(context.Background(), func(error) {
						_ = sd.Shutdown(fx.ExitCode(1))
					})
					return nil
				},
				OnStop: e.Stop,
			})
		}),
	)
}
