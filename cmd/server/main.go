package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ellis-vester/backloggd-discord/internal/di"
	"github.com/ellis-vester/backloggd-discord/internal/modules/poller"
	"github.com/ellis-vester/backloggd-discord/internal/shared/config"
	discordTransport "github.com/ellis-vester/backloggd-discord/internal/transport/discord"
	httpServer "github.com/ellis-vester/backloggd-discord/internal/transport/http"
	"github.com/samber/do/v2"
	slogmulti "github.com/samber/slog-multi"
)

func main() {
	// Setup structured logging with multiple handlers using slog-multi
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	jsonHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	})

	// Use Fanout to send logs to both handlers
	multiHandler := slogmulti.Fanout(textHandler, jsonHandler)
	logger := slog.New(multiHandler)
	slog.SetDefault(logger)

	// Setup dependency injection
	injector, err := di.Setup()
	if err != nil {
		slog.Error("Failed to setup dependency injection", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := di.Shutdown(injector); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()

	// Get services from DI container
	cfg := do.MustInvoke[*config.Config](injector)
	handler := do.MustInvoke[*discordTransport.Handler](injector)
	scheduler := do.MustInvoke[*poller.Scheduler](injector)
	server := do.MustInvoke[*httpServer.Server](injector)

	// Connect to Discord and register commands
	if err := handler.Open(); err != nil {
		slog.Error("Failed to open discord session", "error", err)
		os.Exit(1)
	}

	// Start polling subscribed feeds
	if err := scheduler.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Start status HTTP server
	go func() {
		if err := server.Start(); err != nil {
			slog.Error("Failed to start status server", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Bot started", "port", cfg.HTTPPort, "poll_interval", cfg.PollInterval)
	slog.Info("Press Ctrl+C to stop")

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	slog.Info("Shutting down...")
}
