package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"prism/client/internal/app"
	"prism/client/internal/host/ebitenhost"
	"prism/client/internal/telemetry"
)

func main() {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to construct logger: %v", err)
	}
	defer zapLogger.Sync()

	cfg := app.DefaultConfig()
	cfg.Logger = telemetry.WrapZap(zapLogger.Sugar())
	cfg.ApplyEnv(os.LookupEnv, cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := app.Options{Zap: zapLogger}
	if !cfg.Window {
		if err := app.Run(ctx, cfg, opts); err != nil {
			zapLogger.Fatal("client failed", zap.Error(err))
		}
		return
	}

	if err := runWindow(ctx, cfg, opts); err != nil {
		zapLogger.Fatal("client failed", zap.Error(err))
	}
}

// runWindow drives the simulation from ebiten's update loop, which owns the
// main thread, and serves HTTP alongside.
func runWindow(ctx context.Context, cfg app.Config, opts app.Options) error {
	gameCfg := ebitenhost.DefaultConfig()
	gameCfg.WorldExtent = cfg.World.Extent
	game := ebitenhost.NewGame(gameCfg)
	opts.Frontend = game

	client, err := app.New(cfg, opts)
	if err != nil {
		return err
	}
	defer client.Close()
	game.Bind(client.World.Scene, client.Step, client.Now, client.Snapshot, client.Anchor)
	if err := client.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := client.Serve(ctx); err != nil {
			cfg.Logger.Printf("%v", err)
		}
	}()
	return ebitenhost.Run(game)
}
