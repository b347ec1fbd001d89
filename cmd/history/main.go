package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"deriv_bot/internal/modules/config"
	derivws "deriv_bot/internal/modules/deriv_ws"
	ws "deriv_bot/internal/modules/deriv_ws/service"
	market "deriv_bot/internal/modules/market/service"
	"deriv_bot/pkg/logger"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "инструменты через запятую (по умолчанию из конфига)")
	outDir := flag.String("out", "data/history", "каталог для parquet-файлов")
	timeframe := flag.Int64("timeframe", 0, "таймфрейм свечей в секундах (по умолчанию из конфига)")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Service: "deriv_history", Console: true})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	symbols := cfg.ActiveSymbols()
	if *symbolsFlag != "" {
		symbols = nil
		for _, s := range strings.Split(*symbolsFlag, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, s)
			}
		}
	}
	tf := cfg.Trading.TimeframeSec
	if *timeframe > 0 {
		tf = *timeframe
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := ws.NewClient(derivws.NewOptions(cfg), log)
	client.Start(ctx)
	defer client.Stop()

	if err := client.WaitUntilConnected(ctx, config.Seconds(cfg.Deriv.ConnectTimeoutSec)); err != nil {
		logger.Fatal("[HISTORY] deriv not reachable: %v", err)
	}

	failed := 0
	for _, sym := range symbols {
		candles, err := market.FetchCandles(ctx, client, sym, tf, log)
		if err != nil {
			log.Error("[HISTORY] fetch failed", zap.String("symbol", sym), zap.Error(err))
			failed++
			continue
		}
		path, err := market.WriteParquet(*outDir, sym, candles)
		if err != nil {
			log.Error("[HISTORY] write failed", zap.String("symbol", sym), zap.Error(err))
			failed++
			continue
		}
		log.Info("[HISTORY] exported", zap.String("symbol", sym), zap.Int("candles", len(candles)), zap.String("path", path))
	}
	if failed > 0 {
		logger.Fatal("[HISTORY] %d of %d symbols failed", failed, len(symbols))
	}
}
