package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/ha_trader/internal/config"
	"github.com/vitos/ha_trader/internal/domain"
	"github.com/vitos/ha_trader/internal/indicators"
	"github.com/vitos/ha_trader/internal/infrastructure/exchange"
	"github.com/vitos/ha_trader/internal/infrastructure/logger"
	"github.com/vitos/ha_trader/internal/usecase"
)

type printSink struct{}

func (printSink) Publish(d domain.TradeDecision) {
	out, _ := json.MarshalIndent(d, "", "  ")
	fmt.Printf("\nDecision:\n%s\n", out)
}

// debug_pair runs one tick of the pipeline for a single pair in dry-run mode and prints
// the Heiken-Ashi tail plus the resulting decision. It never sends orders.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	pair := flag.String("pair", "", "pair to analyze, e.g. EUR_USD")
	bars := flag.Int("bars", 10, "Heiken-Ashi bars to print")
	logFile := flag.String("log", "", "write JSON logs to this file instead of stderr")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	pc, err := cfg.Pair(*pair)
	if err != nil {
		fmt.Printf("❌ %v (configured: %v)\n", err, cfg.PairNames())
		os.Exit(1)
	}
	cfg.Trading.DryRun = true

	var log *zap.Logger
	if *logFile != "" {
		log, err = logger.NewFileLogger(*logFile, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 2. Init Broker
	broker := exchange.NewOandaAdapter(cfg.Broker.APIKey, cfg.Broker.AccountID, cfg.Broker.RESTEndpoint,
		time.Duration(cfg.Broker.TimeoutSeconds)*time.Second, log)
	ctx := context.Background()

	market := usecase.NewMarketService(broker, cfg.Broker.HomeCurrency, log)
	if err := market.LoadInstruments(ctx, []string{pc.Pair}); err != nil {
		fmt.Printf("❌ Failed to load instrument: %v\n", err)
		os.Exit(1)
	}

	// 3. Heiken-Ashi tail
	candles, err := market.Candles(ctx, pc.Pair, pc.Granularity, cfg.Trading.CandleCount)
	if err != nil {
		fmt.Printf("❌ Failed to get candles: %v\n", err)
		os.Exit(1)
	}
	signal := usecase.DetectReversal(candles, cfg.Trading.HeikenAshiWindow, cfg.Trading.HeikenAshiStreak)
	fmt.Printf("%s %s: %d candles, streak=%d trigger=%d\n", pc.Pair, pc.Granularity, len(candles), signal.Streak, signal.Trigger)
	for _, b := range lastBars(signal.Bars, *bars) {
		fmt.Printf("  %s O=%.5f H=%.5f L=%.5f C=%.5f streak=%+d extreme=%t\n",
			b.Time.Format("2006-01-02 15:04"), b.Open, b.High, b.Low, b.Close, b.Streak, b.OpenedAtExtreme)
	}
	if dir := signal.Trigger; dir != 0 {
		if swing, ok := indicators.Swing(signal.Bars, dir); ok {
			fmt.Printf("  swing stop anchor: %.5f\n", swing)
		}
	}

	// 4. Full dry-run decision
	executor := usecase.NewTradeExecutor(broker, nil, true, log)
	trader := usecase.NewTraderService(cfg, broker, market, executor, printSink{}, log)
	if _, err := trader.ProcessPair(ctx, pc.Pair); err != nil {
		log.Error("Pipeline failed", zap.Error(err))
		os.Exit(1)
	}
}

func lastBars(bars []indicators.HACandle, n int) []indicators.HACandle {
	if n <= 0 || len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}
