package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // America/New_York must resolve on tzdata-less images

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"daytrader/internal/config"
	"daytrader/internal/dashboard"
	"daytrader/internal/engine"
	"daytrader/internal/mab"
	"daytrader/internal/marketdata"
	"daytrader/internal/memgov"
	"daytrader/internal/position"
	"daytrader/internal/store"
	"daytrader/internal/strategy"
	"daytrader/internal/webhook"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to configuration file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	gw, err := store.OpenBadger(cfg.Store.Path, logger)
	if err != nil {
		logger.WithError(err).Error("opening store failed")
		return 1
	}

	positions := store.NewPositionRepo(gw)
	trades := store.NewTradeRepo(gw)
	inactive := store.NewInactiveRepo(gw)
	events := store.NewEventRepo(gw)
	mabRepo := store.NewMABRepo(gw)

	provider := marketdata.NewCircuitBreakerProvider(marketdata.NewAlpacaProvider(marketdata.Options{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.BaseURL,
	}, logger), logger)

	governor := memgov.New(cfg.GovernorLimits(), logger)
	governor.SetEventSink(func(eventType, detail string) {
		if err := events.Record(context.Background(), "governor", eventType, detail); err != nil {
			logger.WithError(err).Warn("governor event not recorded")
		}
	})
	fetcher := marketdata.NewFetcher(provider, governor, logger)
	selector := mab.NewSelector(mabRepo, logger)
	hook := webhook.NewClient(cfg.Webhook.URL, logger)

	var runners []engine.Runner
	for _, params := range strategy.Enabled(os.Getenv) {
		manager := position.NewManager(positions, trades, selector, hook, params.PositionDollars, logger)
		runners = append(runners, strategy.NewRunner(params, strategy.Deps{
			Provider:  provider,
			Fetcher:   fetcher,
			Governor:  governor,
			Selector:  selector,
			Manager:   manager,
			Positions: positions,
			Trades:    trades,
			Inactive:  inactive,
			Events:    events,
			Logger:    logger,
		}))
	}

	dash := dashboard.NewServer(dashboard.Config{
		Port:      cfg.Dashboard.Port,
		AuthToken: cfg.Dashboard.AuthToken,
	}, positions, trades, inactive, logger)
	go func() {
		if err := dash.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("dashboard server stopped")
		}
	}()

	coordinator := engine.New(engine.Config{
		StartupDelay:  time.Duration(cfg.Engine.StartupDelaySeconds) * time.Second,
		ShutdownGrace: 15 * time.Second,
	}, runners, gw, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithField("strategies", len(runners)).Info("trading engine starting")
	runErr := coordinator.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dash.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("dashboard shutdown incomplete")
	}

	if runErr != nil {
		logger.WithError(runErr).Error("trading engine exited with error")
		return 1
	}
	logger.Info("trading engine stopped cleanly")
	return 0
}
