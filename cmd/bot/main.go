package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"deriv_bot/internal/modules/config"
	derivws "deriv_bot/internal/modules/deriv_ws"
	"deriv_bot/internal/modules/execution"
	"deriv_bot/internal/modules/health"
	"deriv_bot/internal/modules/market"
	"deriv_bot/internal/modules/postgres"
	"deriv_bot/internal/modules/risk"
	"deriv_bot/internal/modules/storage"
	"deriv_bot/internal/modules/strategy"
	telegram "deriv_bot/internal/modules/telegram_bot"
	"deriv_bot/internal/runner"
	"deriv_bot/pkg/logger"
	"deriv_bot/pkg/tracing"
)

const serviceName = "deriv_bot"

func main() {
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
			func(cfg *config.Config) (*zap.Logger, error) {
				return logger.New(logger.Config{Level: cfg.LogLevel, Service: serviceName})
			},
		),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			tracing.SetServiceName(serviceName)
			_, closer, err := tracing.InitTracer(tracing.Config{
				Enabled: cfg.Tracing.Enabled,
				Host:    cfg.Tracing.Host,
				Port:    cfg.Tracing.Port,
			})
			if err != nil {
				return err
			}
			lc.Append(fx.StopHook(closer))
			return nil
		}),
		config.Module(),
		postgres.Module(),
		storage.Module(),
		derivws.Module(),
		market.Module(),
		risk.Module(),
		health.Module(),
		telegram.Module(),
		strategy.Module(),
		execution.Module(),
		runner.Module(),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}
