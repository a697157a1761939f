package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/apexbay/nftmarket/internal/config"
	"github.com/apexbay/nftmarket/internal/database"
	"github.com/apexbay/nftmarket/internal/events"
	"github.com/apexbay/nftmarket/internal/feed"
	"github.com/apexbay/nftmarket/internal/journal"
	"github.com/apexbay/nftmarket/internal/ledger"
	"github.com/apexbay/nftmarket/internal/model"
	"github.com/apexbay/nftmarket/internal/payment"
	"github.com/apexbay/nftmarket/internal/server"
	"github.com/apexbay/nftmarket/internal/token"
	"github.com/apexbay/nftmarket/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/marketd.yaml", "path to config file")
	flag.Parse()

	// Bootstrap logger; replaced once the configured level is known.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	logger.Info("starting marketd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Logging.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"listen_addr", cfg.Server.ListenAddr,
		"operator", cfg.Market.Operator,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	logger.Info("database ready")

	// Event bus feeding the journal and the WebSocket feed
	bus := events.NewBus(events.DefaultBufferSize)

	// Token registries from configuration
	operator, err := model.ParseAddress(cfg.Market.Operator)
	if err != nil {
		logger.Error("invalid operator address", "error", err)
		os.Exit(1)
	}

	dir := token.NewDirectory()
	for _, cc := range cfg.Collections {
		addr, err := model.ParseAddress(cc.Address)
		if err != nil {
			logger.Error("invalid collection address", "address", cc.Address, "error", err)
			os.Exit(1)
		}

		coll := token.NewMemoryCollection()
		for _, pm := range cc.Premint {
			owner, err := model.ParseAddress(pm.Owner)
			if err != nil {
				logger.Error("invalid premint owner", "address", pm.Owner, "error", err)
				os.Exit(1)
			}
			if err := coll.Mint(owner, pm.TokenID); err != nil {
				logger.Error("premint failed", "collection", addr, "token_id", pm.TokenID, "error", err)
				os.Exit(1)
			}
			// Preminted tokens come marketplace-approved so they are
			// listable immediately.
			if err := coll.Approve(operator, pm.TokenID); err != nil {
				logger.Error("premint approval failed", "collection", addr, "token_id", pm.TokenID, "error", err)
				os.Exit(1)
			}
		}

		dir.Register(addr, coll)
		logger.Info("collection registered", "address", addr, "preminted", len(cc.Premint))
	}

	// Settlement ledger
	bank := payment.NewMemoryBank()
	led := ledger.New(operator, dir, bank, bus, logger)

	// Journal writer
	jw := journal.NewWriter(journal.Config{
		BatchSize:     cfg.Journal.BatchSize,
		FlushInterval: cfg.Journal.FlushInterval,
	}, bus.Subscribe(), pool, logger)

	if err := jw.Start(ctx); err != nil {
		logger.Error("failed to start journal writer", "error", err)
		os.Exit(1)
	}

	// WebSocket feed hub
	hub := feed.NewHub(feed.Config{
		SendBuffer:   cfg.Feed.SendBuffer,
		PingInterval: cfg.Feed.PingInterval,
		MaxClients:   cfg.Feed.MaxClients,
	}, bus.Subscribe(), logger)

	// HTTP server
	srv := server.New(server.Config{
		ListenAddr:   cfg.Server.ListenAddr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, led, hub, jw, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return srv.Stop(shutdownCtx)
	})

	logger.Info("marketd running",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.Server.ListenAddr,
	)

	if err := g.Wait(); err != nil {
		logger.Error("component failed", "error", err)
	}

	logger.Info("shutting down...")

	// No publishers remain; close the bus and drain the journal.
	bus.Close()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stopCancel()
	if err := jw.Stop(stopCtx); err != nil {
		logger.Error("journal writer stop failed", "error", err)
	}

	logger.Info("marketd stopped")
}
