package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/ha_trader/internal/config"
	"github.com/vitos/ha_trader/internal/domain"
	"github.com/vitos/ha_trader/internal/infrastructure/exchange"
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

	fmt.Printf("Testing OANDA Interaction...\n")
	fmt.Printf("Endpoint: %s\n", cfg.Broker.RESTEndpoint)
	fmt.Printf("Account: %s\n", cfg.Broker.AccountID)

	adapter := exchange.NewOandaAdapter(cfg.Broker.APIKey, cfg.Broker.AccountID, cfg.Broker.RESTEndpoint,
		time.Duration(cfg.Broker.TimeoutSeconds)*time.Second, zap.NewNop())
	ctx := context.Background()

	// 2. Account
	nav, err := adapter.GetAccountNAV(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get NAV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ NAV: %.2f %s\n", nav, cfg.Broker.HomeCurrency)

	// 3. Instruments
	insts, err := adapter.GetInstruments(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get instruments: %v\n", err)
	} else {
		byName := make(map[string]domain.InstrumentMeta, len(insts))
		for _, i := range insts {
			byName[i.Name] = i
		}
		fmt.Printf("✅ %d instruments\n", len(insts))
		for _, p := range cfg.Pairs {
			if i, ok := byName[p.Pair]; ok {
				fmt.Printf("   %s pip=%g units_precision=%d margin=%g\n", p.Pair, i.PipLocation(), i.TradeUnitsPrecision, i.MarginRate)
			} else {
				fmt.Printf("   ⚠️ %s not offered on this account\n", p.Pair)
			}
		}
	}

	// 4. Prices and positions
	for _, p := range cfg.Pairs {
		price, err := adapter.GetPrice(ctx, p.Pair)
		if err != nil {
			fmt.Printf("❌ %s price: %v\n", p.Pair, err)
			continue
		}
		pos, err := adapter.GetPosition(ctx, p.Pair)
		if err != nil {
			fmt.Printf("❌ %s position: %v\n", p.Pair, err)
			continue
		}
		units := 0.0
		if pos != nil {
			units = pos.Units
		}
		side := domain.SideOf(units)
		if side == "" {
			side = "FLAT"
		}
		fmt.Printf("✅ %s bid=%g ask=%g spread=%g units=%g side=%s\n", p.Pair, price.Bid, price.Ask, price.Spread(), units, side)
	}
}
