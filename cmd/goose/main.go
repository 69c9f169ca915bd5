// Goose server — discovers agent tests, schedules runs on a worker pool,
// persists result history, and streams live state to dashboard clients.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/gooseworks/goose/pkg/api"
	"github.com/gooseworks/goose/pkg/chat"
	"github.com/gooseworks/goose/pkg/config"
	"github.com/gooseworks/goose/pkg/discovery"
	"github.com/gooseworks/goose/pkg/events"
	"github.com/gooseworks/goose/pkg/history"
	"github.com/gooseworks/goose/pkg/queue"
	"github.com/gooseworks/goose/pkg/runner"
	"github.com/gooseworks/goose/pkg/tooling"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("GOOSE_CONFIG", "goose.yaml"),
		"Path to configuration file")
	flag.Parse()

	// Load .env beside the config file before reading configuration.
	envPath := filepath.Join(filepath.Dir(*configPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("No .env file loaded, continuing with existing environment",
			"path", envPath, "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	slog.Info("Starting goose",
		"addr", cfg.Server.Addr(),
		"project_root", cfg.Project.Root,
		"workers", cfg.Queue.WorkerCount)

	ctx := context.Background()

	// Note: grpc.NewClient dials lazily; the actual connection happens on
	// the first RPC call.
	runnerClient, err := runner.NewGRPCClient(cfg.Runner.Addr, runner.GRPCOptions{
		ProjectRoot:   cfg.Project.Root,
		ReloadExclude: cfg.Project.ReloadExclude,
		CallTimeout:   cfg.Runner.CallTimeout,
	})
	if err != nil {
		slog.Error("Failed to initialize runner client", "addr", cfg.Runner.Addr, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := runnerClient.Close(); err != nil {
			slog.Error("Error closing runner client", "error", err)
		}
	}()
	slog.Info("Runner client initialized", "addr", cfg.Runner.Addr)

	historyStore, err := history.NewStore(cfg.History.Dir, logger)
	if err != nil {
		slog.Error("Failed to open history store", "dir", cfg.History.Dir, "error", err)
		os.Exit(1)
	}

	discoveryService := discovery.NewService(runnerClient, logger)
	bus := events.NewBus(logger)
	streamServer := events.NewStreamServer(bus, cfg.Server.WSWriteTimeout, logger)
	pipeline := queue.NewPipeline(runnerClient, logger)

	jobManager := queue.NewManager(cfg.Queue, discoveryService, pipeline, historyStore, bus, logger)
	jobManager.Start(ctx)

	toolingService := tooling.NewService(runnerClient, logger)
	chatService := chat.NewService(chat.NewStore(), runnerClient, logger)

	server := api.NewServer(cfg.Server, discoveryService, jobManager, historyStore,
		toolingService, chatService, streamServer, runnerClient, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Goose started successfully")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	jobManager.Stop()

	slog.Info("Goose stopped")
}
