// feedtap connects to a marketd WebSocket feed and prints events to
// the console.
//
// Usage: go run ./cmd/feedtap --url ws://localhost:8080/ws
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apexbay/nftmarket/internal/model"
	"github.com/apexbay/nftmarket/internal/version"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "feed URL")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{"User-Agent": []string{version.UserAgent("feedtap")}}
	conn, _, err := dialer.DialContext(ctx, *url, header)
	if err != nil {
		logger.Error("failed to connect", "url", *url, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	logger.Info("connected - press Ctrl+C to stop", "url", *url)

	// Read loop; errors end the tap.
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			printEvent(data, *verbose)
		}
	}()

	select {
	case <-ctx.Done():
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
	case err := <-readErr:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			logger.Info("feed closed")
		} else {
			logger.Error("read failed", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("feedtap stopped")
}

func printEvent(data []byte, verbose bool) {
	var ev model.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		fmt.Printf("[RAW] %s\n", data)
		return
	}

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
	default:
		fmt.Printf("[%s] %s\n", ev.Type, data)
	}
}
