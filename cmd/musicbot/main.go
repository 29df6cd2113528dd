package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lavaflow/lavaflow/internal/bot"

	// Modules register themselves on import.
	_ "github.com/lavaflow/lavaflow/internal/modules/music"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := bot.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	b := bot.NewBot(cfg)
	b.LoadModules()

	ctx := context.Background()
	if err := b.Start(ctx); err != nil {
		slog.Error("failed to start bot", "error", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	if err := b.Stop(ctx); err != nil {
		slog.Error("failed to stop bot cleanly", "error", err)
	}
}
