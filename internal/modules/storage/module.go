package storage

import (
	"context"

	"go.uber.org/fx"

	"deriv_bot/internal/modules/storage/service"
	"deriv_bot/pkg/db"
)

// Module журналы событий и сделок поверх pgx.
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(
			service.NewEventRepository,
			service.NewTradeRepository,
		),
		fx.Invoke(func(lc fx.Lifecycle, tx db.TxManager) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return service.EnsureSchema(ctx, tx)
				},
			})
		}),
	)
}
