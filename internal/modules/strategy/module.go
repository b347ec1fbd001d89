package strategy

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"deriv_bot/internal/modules/config"
	"deriv_bot/internal/modules/strategy/service"
	"deriv_bot/internal/notify"
)

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			func(cfg *config.Config, n notify.Notifier, log *zap.Logger) (*service.Hub, error) {
				return service.NewHub(cfg.ActiveSymbols(), cfg.Trading.Strategy, n, log)
			},
		),
	)
}
