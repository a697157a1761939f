// tradetest runs a complete in-memory marketplace scenario and prints
// the resulting events. No server or database is involved; it is a
// manual verification tool for the settlement ledger.
//
// Usage: go run ./cmd/tradetest
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"github.com/apexbay/nftmarket/internal/events"
	"github.com/apexbay/nftmarket/internal/ledger"
	"github.com/apexbay/nftmarket/internal/model"
	"github.com/apexbay/nftmarket/internal/payment"
	"github.com/apexbay/nftmarket/internal/token"
)

const (
	collection = model.Address("0x1234567890123456789012345678901234567890")
	operator   = model.Address("0x9999999999999999999999999999999999999999")
	seller     = model.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	buyer      = model.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func main() {
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	// In-memory stack: one collection, one token, one bank.
	coll := token.NewMemoryCollection()
	if err := coll.Mint(seller, 1); err != nil {
		fatal("mint", err)
	}
	if err := coll.Approve(operator, 1); err != nil {
		fatal("approve", err)
	}

	dir := token.NewDirectory()
	dir.Register(collection, coll)

	bus := events.NewBus(64)
	sub := bus.Subscribe()

	bank := payment.NewMemoryBank()
	led := ledger.New(operator, dir, bank, bus, logger)

	ctx := context.Background()

	// 0.1 ETH in wei.
	price, _ := new(big.Int).SetString("100000000000000000", 10)

	fmt.Println("--- list token 1 at 0.1 ETH")
	if err := led.ListItem(ctx, collection, 1, price, seller); err != nil {
		fatal("list", err)
	}

	l := led.GetListing(collection, 1)
	fmt.Printf("listing: price=%s seller=%s\n", l.Price, l.Seller)

	fmt.Println("--- underpaid buy must fail")
	low := big.NewInt(1)
	err := led.BuyItem(ctx, collection, 1, low, buyer)
	if !ledger.IsKind(err, ledger.KindPriceNotMet) {
		fatal("underpaid buy", fmt.Errorf("got %v, want price_not_met", err))
	}
	fmt.Printf("rejected: %v\n", err)

	fmt.Println("--- buy at asking price")
	if err := led.BuyItem(ctx, collection, 1, price, buyer); err != nil {
		fatal("buy", err)
	}

	owner, err := coll.OwnerOf(ctx, 1)
	if err != nil {
		fatal("owner lookup", err)
	}
	fmt.Printf("token 1 owner: %s\n", owner)
	fmt.Printf("seller proceeds: %s\n", led.GetProceeds(seller))

	fmt.Println("--- withdraw proceeds")
	amount, err := led.WithdrawProceeds(ctx, seller)
	if err != nil {
		fatal("withdraw", err)
	}
	fmt.Printf("withdrew: %s (bank paid %s)\n", amount, bank.Paid(seller))

	fmt.Println("--- second withdraw must fail")
	_, err = led.WithdrawProceeds(ctx, seller)
	if !ledger.IsKind(err, ledger.KindNoProceeds) {
		fatal("second withdraw", fmt.Errorf("got %v, want no_proceeds", err))
	}
	fmt.Printf("rejected: %v\n", err)

	fmt.Println("--- events")
	bus.Close()
	for ev := range sub.C {
		printEvent(ev, *verbose)
	}

	stats := led.Stats()
	fmt.Printf("--- stats: sales=%d withdrawals=%d volume=%s custody=%s\n",
		stats.Sales, stats.Withdrawals, stats.Volume, stats.Custody)

	fmt.Println("OK")
}

func printEvent(ev model.Event, verbose bool) {
	if verbose {
		out, _ := json.MarshalIndent(ev, "", "  ")
		fmt.Printf("[%s] %s\n", ev.Type, out)
		return
	}

	switch ev.Type {
	case model.EventItemListed:
		fmt.Printf("[LISTED] collection=%s token=%d price=%s seller=%s\n",
			ev.Collection, ev.TokenID, ev.Price, ev.Seller)
	case model.EventItemCanceled:
		fmt.Printf("[CANCELED] collection=%s token=%d seller=%s\n",
			ev.Collection, ev.TokenID, ev.Seller)
	case model.EventItemBought:
		fmt.Printf("[BOUGHT] collection=%s token=%d price=%s buyer=%s\n",
			ev.Collection, ev.TokenID, ev.Price, ev.Buyer)
	}
}

func fatal(step string, err error) {
	fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", step, err)
	os.Exit(1)
}
