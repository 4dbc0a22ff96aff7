package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"arbwatch/internal/application/usecase/monitor"
	"arbwatch/internal/infrastructure/config"
	"arbwatch/internal/infrastructure/logger"
	"arbwatch/internal/infrastructure/svc"
	"arbwatch/internal/interfaces/httpapi"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger.Setup("info")

	configPath := flag.String("config", config.DefaultPath, "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service context initialization failed")
	}
	defer sc.Close()

	mon := monitor.NewService(sc.BuildMonitorServiceDeps())

	log.Info().
		Str("config", *configPath).
		Str("symbol", cfg.Market.Pair.String()).
		Str("primary", cfg.Market.Primary).
		Str("secondary", cfg.Market.Secondary).
		Float64("spread_threshold", cfg.Arbitrage.SpreadThreshold).
		Dur("alert_cooldown", cfg.Alert.Cooldown.Duration).
		Dur("cycle_timeout", cfg.Monitor.CycleTimeout.Duration).
		Msg("arbwatch started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(gctx) })
	// ctx 结束后告警服务会先把队列里剩余的告警发完
	g.Go(func() error { return sc.Alerts.Run(gctx) })
	if cfg.HTTP.Enabled {
		srv := httpapi.NewServer(cfg.HTTP.Addr, mon)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("arbwatch exited")
		_ = sc.Close()
		os.Exit(1)
	}
	log.Info().Msg("arbwatch stopped")
}
