package execution

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"deriv_bot/internal/modules/config"
	derivws "deriv_bot/internal/modules/deriv_ws/service"
	"deriv_bot/internal/modules/execution/service"
	risk "deriv_bot/internal/modules/risk/service"
	storage "deriv_bot/internal/modules/storage/service"
	"deriv_bot/internal/notify"
)

type orchestratorParams struct {
	fx.In

	Cfg        *config.Config
	Log        *zap.Logger
	Trades     *storage.TradeRepository
	Events     *storage.EventRepository
	Executor   *service.Executor
	Resolver   *service.MultiplierResolver
	KillSwitch *risk.KillSwitch
	Firewall   *risk.Firewall
	Account    *service.Account
	Notifier   notify.Notifier
}

func newOrchestrator(p orchestratorParams) *service.Orchestrator {
	deps := service.OrchestratorDeps{
		Store:      p.Trades,
		Events:     p.Events,
		Executor:   p.Executor,
		KillSwitch: p.KillSwitch,
		Risk:       p.Firewall,
		Account:    p.Account,
		Notifier:   p.Notifier,
	}
	if p.Cfg.IsMultiplier() {
		deps.Multipliers = p.Resolver
	}
	return service.NewOrchestrator(deps, service.OrchestratorOptions{
		QueueSize:         p.Cfg.Trading.QueueSize,
		DryRun:            p.Cfg.Development.DryRun,
		PerformanceWindow: p.Cfg.Monitoring.PerformanceWindowSize,
	}, p.Log)
}

// Module исполнение сделок: executor, резолвер множителей, очередь с воркером.
func Module() fx.Option {
	return fx.Module("execution",
		fx.Provide(
			service.NewAccount,
			func(c *derivws.Client, cfg *config.Config, log *zap.Logger) *service.Executor {
				return service.NewExecutor(c, service.NewExecutorOptions(cfg), log)
			},
			func(c *derivws.Client, cfg *config.Config, log *zap.Logger) *service.MultiplierResolver {
				return service.NewMultiplierResolver(c, cfg.Trading.Currency, cfg.Trading.Multiplier.Multiplier, log)
			},
			newOrchestrator,
		),
		fx.Invoke(func(lc fx.Lifecycle, o *service.Orchestrator) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					o.Start(context.Background())
					return nil
				},
				OnStop: o.Stop,
			})
		}),
	)
}
