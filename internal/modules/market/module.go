package market

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"deriv_bot/internal/modules/config"
	derivws "deriv_bot/internal/modules/deriv_ws/service"
	"deriv_bot/internal/modules/market/service"
)

// Module отдаёт загрузчик истории для прогрева индикаторов.
func Module() fx.Option {
	return fx.Module("market",
		fx.Provide(
			func(c *derivws.Client, cfg *config.Config, log *zap.Logger) *service.Warmuper {
				return service.NewWarmuper(c, cfg.Trading.TimeframeSec, log)
			},
		),
	)
}
