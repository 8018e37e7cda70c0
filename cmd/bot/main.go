package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/ha_trader/internal/config"
	"github.com/vitos/ha_trader/internal/infrastructure/exchange"
	"github.com/vitos/ha_trader/internal/infrastructure/logger"
	"github.com/vitos/ha_trader/internal/infrastructure/storage"
	"github.com/vitos/ha_trader/internal/usecase"
	"github.com/vitos/ha_trader/internal/web"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewBotLogger(cfg.Logging.Dir, cfg.Logging.BotName, cfg.Logging.Level, time.Now())
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.PruneOldLogs(cfg.Logging.Dir, cfg.Logging.BotName, time.Duration(cfg.Logging.RetentionDays)*24*time.Hour, time.Now(), log)

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Init Broker
	broker := exchange.NewOandaAdapter(
		cfg.Broker.APIKey,
		cfg.Broker.AccountID,
		cfg.Broker.RESTEndpoint,
		time.Duration(cfg.Broker.TimeoutSeconds)*time.Second,
		log.Named("oanda"),
	)
	if lev := cfg.Trading.AccountLeverage; lev > 0 && !cfg.Trading.DryRun {
		if err := broker.SetMarginRate(ctx, 1/lev); err != nil {
			log.Error("Failed to set account leverage", zap.Float64("leverage", lev), zap.Error(err))
		}
	}

	// 5. Init Services
	market := usecase.NewMarketService(broker, cfg.Broker.HomeCurrency, log)
	if err := market.LoadInstruments(ctx, cfg.PairNames()); err != nil {
		log.Fatal("Failed to load instruments", zap.Error(err))
	}
	executor := usecase.NewTradeExecutor(broker, store, cfg.Trading.DryRun, log)
	hub := web.NewDecisionHub(log.Named("ws"))
	trader := usecase.NewTraderService(cfg, broker, market, executor, hub, log)
	tracker := usecase.NewCandleTracker(broker, cfg.Pairs, cfg.Polling.Workers, log)
	runner := usecase.NewRunner(tracker, trader, time.Duration(cfg.Polling.PeriodSeconds)*time.Second, log)

	// 6. Start Web Server
	server := web.NewServer(cfg.Server.Port, store, tracker, trader, hub, cfg.Trading.DryRun, log.Named("web"))
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	// 7. Run until shutdown
	log.Info("Bot started",
		zap.Strings("pairs", cfg.PairNames()),
		zap.Bool("dry_run", cfg.Trading.DryRun),
		zap.String("endpoint", cfg.Broker.RESTEndpoint),
	)
	if err := runner.Run(ctx); err != nil {
		log.Error("Runner failed", zap.Error(err))
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
}
