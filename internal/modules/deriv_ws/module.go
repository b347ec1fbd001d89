package deriv_ws

import (
	"context"

	"deriv_bot/internal/modules/config"
	"deriv_bot/internal/modules/deriv_ws/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewOptions(cfg *config.Config) service.Options {
	d := cfg.Deriv
	return service.Options{
		URL:                d.WebsocketURL,
		AppID:              d.AppID,
		Token:              d.APIToken,
		RequestTimeout:     config.Seconds(d.RequestTimeoutSec),
		ConnectTimeout:     config.Seconds(d.ConnectTimeoutSec),
		HeartbeatInterval:  config.Seconds(d.HeartbeatIntervalSec),
		PongTimeout:        config.Seconds(d.PongTimeoutSec),
		BackoffInitial:     config.Seconds(d.BackoffInitialSec),
		BackoffMax:         config.Seconds(d.BackoffMaxSec),
		BackoffJitter:      d.BackoffJitter,
		SubscriptionBuffer: d.SubscriptionBuffer,
	}
}

// Module поднимает websocket-клиент брокера.
func Module() fx.Option {
	return fx.Module("deriv_ws",
		fx.Provide(
			NewOptions,
			service.NewClient,
		),
		fx.Invoke(func(lc fx.Lifecycle, c *service.Client, log *zap.Logger) {
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					c.Start(ctx)
					return nil
				},
				OnStop: func(context.Context) error {
					cancel()
					c.Stop()
					log.Info("[WS] client closed")
					return nil
				},
			})
		}),
	)
}
