package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tailbits/hypermedia/traverse"
	"golang.org/x/sync/errgroup"
)

// Run example/orders first and pass the order URL it logs.
func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: client <order url>")
		os.Exit(2)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client := traverse.New(
		traverse.NewRetryTransport(traverse.DefaultAccept,
			traverse.WithRetryMax(3),
			traverse.WithRetryWait(100*time.Millisecond, time.Second),
			traverse.WithRetryLogger(log),
		),
		traverse.WithTimeout(5*time.Second),
		traverse.WithLogger(log),
	)

	ctx := context.Background()
	order, err := client.Get(ctx, os.Args[1])
	if err != nil {
		log.Error("get order", "error", err)
		os.Exit(1)
	}
	fmt.Printf("order %s: %v\n", order.ID, order.Attributes["status"])

	// The customer and the items are fetched concurrently through one session cache.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		customer, err := client.Follow(gctx, order, "customer")
		if err != nil {
			return err
		}
		fmt.Printf("customer %s: %v\n", customer.ID, customer.Attributes["name"])
		return nil
	})
	g.Go(func() error {
		for item, err := range client.Pages(gctx, order, "items", nil) {
			if err != nil {
				return err
			}
			fmt.Printf("item %s: %v\n", item.ID, item.Attributes["sku"])
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error("traverse", "error", err)
		os.Exit(1)
	}
	log.Info("done", "cached", client.Cache().Len())
}
