package risk

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"deriv_bot/internal/modules/config"
	"deriv_bot/internal/modules/risk/service"
)

// Module фаервол, сайзер и kill switch.
func Module() fx.Option {
	return fx.Module("risk",
		fx.Provide(
			func(cfg *config.Config) *service.Firewall { return service.NewFirewall(cfg.Trading.Risk) },
			func(cfg *config.Config) service.Sizer { return service.NewSizer(cfg.Trading.Risk) },
			func(cfg *config.Config, log *zap.Logger) (*service.KillSwitch, error) {
				return service.NewKillSwitch(cfg.KillSwitch.Path, log)
			},
		),
	)
}
