package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kilometers.ai/authclient/internal/config"
	"kilometers.ai/authclient/internal/infrastructure/telemetry"
	"kilometers.ai/authclient/internal/interfaces/cli"
	"kilometers.ai/authclient/internal/interfaces/di"
)

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	di.Version = cli.Version
	container, err := di.NewContainer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "kmauth", cli.Version, cfg.OTelEndpoint)
	if err != nil {
		container.Logger.LogError(err, "Tracing disabled", nil)
		shutdownTracing = func(context.Context) error { return nil }
	}

	runErr := cli.Execute(ctx, &cli.CLIContainer{
		Session:     container.Session,
		Coordinator: container.Coordinator,
		Client:      container.Chain,
		Bus:         container.Bus,
		Location:    container.Location,
		Overrides:   container,
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		container.Logger.LogError(err, "Failed to flush traces", nil)
	}
	if err := container.Shutdown(shutdownCtx); err != nil {
		container.Logger.LogError(err, "Error during shutdown", nil)
	}

	if runErr != nil {
		return 1
	}
	return 0
}
