package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"deriv_bot/internal/modules/config"
	"deriv_bot/pkg/db"
)

// Module пул pgx и менеджер транзакций как fx-провайдеры.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*db.PgTxManager, error) {
				if cfg.Database.DSN == "" {
					return nil, fmt.Errorf("database.dsn is empty")
				}
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN:      cfg.Database.DSN,
					MaxConns: cfg.Database.MaxConns,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					poolMaster.Close()
					return nil, err
				}
				log.Info("[DB] connected", zap.Int32("max_conns", poolMaster.Config().MaxConns))

				m := db.NewPgTxManager(poolMaster)
				lc.Append(fx.StopHook(m.Close))
				return m, nil
			},
			func(m *db.PgTxManager) db.TxManager { return m },
		),
	)
}
