package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vitos/ha_trader/internal/infrastructure/storage"
)

func main() {
	dbPath := flag.String("db", "journal.db", "path to the journal database")
	limit := flag.Int("limit", 20, "rows per table")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	orders, err := store.ListOrders(ctx, *limit)
	if err != nil {
		fmt.Printf("Failed to list orders: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Last %d orders:\n", len(orders))
	for _, o := range orders {
		fmt.Printf("- %s %s %s %s %s units=%g price=%g status=%s broker_id=%s %s\n",
			o.CreatedAt.Format("2006-01-02 15:04"), o.Pair, o.Granularity, o.Action, o.Kind,
			o.Units, o.Price, o.Status, o.BrokerOrderID, o.Reason)
	}

	rejections, err := store.ListRejections(ctx, *limit)
	if err != nil {
		fmt.Printf("Failed to list rejections: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nLast %d rejections:\n", len(rejections))
	for _, r := range rejections {
		fmt.Printf("- %s %s trigger=%d net=%.2f rsi=%.1f reason=%s\n",
			r.CreatedAt.Format("2006-01-02 15:04"), r.Pair, r.Trigger, r.NetStrength, r.RSI, r.Reason)
	}

	updates, err := store.ListStopUpdates(ctx, *limit)
	if err != nil {
		fmt.Printf("Failed to list stop updates: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nLast %d stop updates:\n", len(updates))
	for _, u := range updates {
		old := "none"
		if u.OldStop != nil {
			old = fmt.Sprintf("%g", *u.OldStop)
		}
		fmt.Printf("- %s %s trade=%s %s -> %g status=%s\n",
			u.CreatedAt.Format("2006-01-02 15:04"), u.Pair, u.TradeID, old, u.NewStop, u.Status)
	}
}
