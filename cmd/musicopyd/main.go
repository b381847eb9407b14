// Command musicopyd runs the musicopy node: the overlay peer endpoint, the
// transcode pipeline, and the control-plane HTTP API, all built around a
// single internal/core.Core facade. Grounded on the teacher's main.go
// (slog JSON handler, config.Load, signal-based graceful shutdown).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazelmeow/musicopy/internal/api"
	"github.com/hazelmeow/musicopy/internal/config"
	"github.com/hazelmeow/musicopy/internal/core"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	slog.Info("starting musicopy node",
		"listen_addr", cfg.ListenAddr,
		"http_addr", cfg.HTTPAddr,
		"transcodes_dir", cfg.TranscodesDir,
	)

	broadcaster := api.NewBroadcaster()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := core.NewCore(ctx, cfg, broadcaster)
	if err != nil {
		slog.Error("failed to start core", "error", err)
		os.Exit(1)
	}
	slog.Info("node identity", "node_id", c.NodeID(), "overlay_addr", c.ListenAddr())

	server := api.NewServer(c, broadcaster, cfg.HTTPAddr)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		slog.Info("shutdown signal received")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		slog.Error("http server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		slog.Error("core shutdown error", "error", err)
	}

	slog.Info("musicopy node stopped")
}
