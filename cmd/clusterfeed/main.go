package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"clusterfeed/internal/config"
	"clusterfeed/internal/gateway/binance"
	"clusterfeed/internal/hub"
	"clusterfeed/internal/logger"
	"clusterfeed/internal/market"
	"clusterfeed/internal/server"
	"clusterfeed/internal/store"
	"clusterfeed/internal/synth"
	"clusterfeed/internal/transport/ws"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Errorf("exit: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	st, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	feed, err := buildFeed(cfg)
	if err != nil {
		return err
	}

	h := hub.New(ctx, hub.Config{
		Feed:            feed,
		Store:           st,
		BackfillCount:   cfg.Stream.BackfillCount,
		HistoryLimit:    cfg.Stream.HistoryLimit,
		Depth:           cfg.Stream.OrderBookDepth,
		MaxTickInterval: cfg.MaxTickInterval(),
	})
	defer h.Close()

	wsRouter := ws.NewRouter(h, ws.RouterConfig{
		DefaultKey:   market.StreamKey{Symbol: cfg.Stream.DefaultSymbol, Interval: cfg.Stream.DefaultInterval},
		ConnectLimit: cfg.Stream.ConnectLimit,
		SendBuffer:   cfg.Stream.SendBuffer,
	})

	srv, err := server.New(server.Config{
		Addr:     cfg.Server.Addr,
		WSPath:   cfg.Server.WSPath,
		Hub:      h,
		WSRouter: wsRouter,
	})
	if err != nil {
		return err
	}

	logger.Infof("serving HTTP on %s (ws at %s, feed=%s)", cfg.Server.Addr, cfg.Server.WSPath, cfg.Feed.Provider)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	return g.Wait()
}

func buildStore(cfg *config.Config) (store.Store, func(), error) {
	if cfg.Store.SQLitePath == "" {
		logger.Infof("using in-memory store")
		return store.NewMemoryStore(), func() {}, nil
	}
	s, err := store.OpenSQLite(cfg.Store.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("using sqlite store at %s", cfg.Store.SQLitePath)
	return s, func() { _ = s.Close() }, nil
}

func buildFeed(cfg *config.Config) (market.Feed, error) {
	switch cfg.Feed.Provider {
	case "", "synthetic":
		return synth.NewEngine(synth.Options{}), nil
	case "binance":
		return binance.New(), nil
	default:
		return nil, fmt.Errorf("unknown feed provider %q", cfg.Feed.Provider)
	}
}
