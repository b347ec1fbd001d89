package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"deriv_bot/internal/modules/config"
	"deriv_bot/internal/modules/health/service"
	risk "deriv_bot/internal/modules/risk/service"
	storage "deriv_bot/internal/modules/storage/service"
)

type Config struct {
	Addr string // например ":8080"
}

func NewConfig(cfg *config.Config) Config {
	return Config{Addr: cfg.HTTP.Addr}
}

func NewMetrics(cfg *config.Config) *service.Metrics {
	return service.NewMetrics(cfg.ActiveSymbols())
}

func NewMetricsWriter(cfg *config.Config, m *service.Metrics, log *zap.Logger) *service.MetricsWriter {
	return service.NewMetricsWriter(m, cfg.Monitoring.MetricsPath, config.Seconds(cfg.Monitoring.MetricsIntervalSec), log)
}

func NewRouter(
	state *service.State,
	metrics *service.Metrics,
	ks *risk.KillSwitch,
	trades *storage.TradeRepository,
	events *storage.EventRepository,
	log *zap.Logger,
) *gin.Engine {
	return service.NewAPI(service.APIDeps{
		State:      state,
		Metrics:    metrics,
		KillSwitch: ks,
		Trades:     trades,
		Events:     events,
	}, log).Routes()
}

func RunHTTP(lc fx.Lifecycle, cfg Config, router *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			log.Info("[HTTP] listening", zap.String("addr", ln.Addr().String()))
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func RunMetricsWriter(lc fx.Lifecycle, w *service.MetricsWriter) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				w.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return w.WriteOnce()
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewConfig,
			NewMetrics,
			NewMetricsWriter,
			NewRouter,
		),
		fx.Invoke(RunHTTP, RunMetricsWriter),
	)
}
