package telegram

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"deriv_bot/internal/modules/config"
	health "deriv_bot/internal/modules/health/service"
	risk "deriv_bot/internal/modules/risk/service"
	"deriv_bot/internal/modules/telegram_bot/service"
	"deriv_bot/internal/notify"
)

// NewNotifier Telegram при заданных token и chat_id, иначе уведомления в лог.
func NewNotifier(
	lc fx.Lifecycle,
	cfg *config.Config,
	ks *risk.KillSwitch,
	metrics *health.Metrics,
	log *zap.Logger,
) (notify.Notifier, error) {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		log.Info("[TG] telegram not configured, notifications go to log")
		return notify.NewStdout(log), nil
	}

	t, err := service.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, ks, metrics, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			t.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			t.Stop()
			return nil
		},
	})
	return t, nil
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(NewNotifier),
	)
}
