// Command signalhub runs the WebRTC signaling hub as a standalone process.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MatusOllah/slogcolor"

	"github.com/signalhub/signalhub/internal/config"
	"github.com/signalhub/signalhub/ws"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the signaling hub configuration document")
	flag.Parse()

	logger := newLogger()
	slog.SetDefault(logger)

	snap, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	hub := ws.New(ws.Config{
		Snapshot: snap,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := hub.Start(ctx); err != nil {
		logger.Error("signaling hub exited with error", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := hub.Stop(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "err", err)
	}
}

func newLogger() *slog.Logger {
	opts := slogcolor.DefaultOptions
	opts.Level = slog.LevelInfo
	return slog.New(slogcolor.NewHandler(os.Stderr, opts))
}
