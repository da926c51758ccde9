// Taskbotd is the taskbot daemon: it buffers forwarded chat messages per
// user, analyzes them into tasks and files those tasks into the user's
// destinations.
//
// Configuration is read from ~/.config/taskbot/config.yaml and TASKBOT_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon
//	taskbotd
//
//	# Use another config file
//	taskbotd -config /etc/taskbot/config.yaml
//
//	# Override settings from the environment
//	TASKBOT_ORACLE_PROVIDER=anthropic TASKBOT_ORACLE_API_KEY=... taskbotd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskbot/internal/config"
	"github.com/fyrsmithlabs/taskbot/internal/feed"
	httpserver "github.com/fyrsmithlabs/taskbot/internal/http"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  taskbotd           Start the taskbot daemon\n")
			fmt.Fprintf(os.Stderr, "  taskbotd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("taskbotd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until ctx is cancelled.
//
// Startup order:
//  1. Load and validate configuration
//  2. Initialize logger and telemetry
//  3. Connect to infrastructure (NATS, cache) and destination collaborators
//  4. Build the pipeline
//  5. Start background work (idle sweep, destination file watch, NATS feed)
//  6. Serve HTTP until ctx is done, then shut down gracefully
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	deps, err := initDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()
	logger := deps.logger

	logger.Info(ctx, "starting taskbotd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("oracle", cfg.Oracle.Provider),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("destinations", cfg.Destinations.Provider),
		zap.String("committer", cfg.Destinations.Committer),
		zap.Bool("nats_connected", deps.natsConn != nil))

	svc, err := initPipeline(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	go svc.RunSweeper(ctx, cfg.Session.SweepInterval.Duration(), cfg.Session.IdleTimeout.Duration())

	if deps.fileProvider != nil && cfg.Destinations.Watch {
		go func() {
			if err := deps.fileProvider.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(ctx, "destination watch stopped", zap.Error(err))
			}
		}()
	}

	if cfg.NATS.FeedEnabled {
		sub, err := feed.New(deps.natsConn, svc, logger, feed.Config{QueueGroup: cfg.NATS.QueueGroup})
		if err != nil {
			return fmt.Errorf("failed to create feed: %w", err)
		}
		if err := sub.Start(ctx); err != nil {
			return err
		}
		defer sub.Stop()
	}

	srv, err := httpserver.NewServer(svc, logger, &httpserver.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Metrics: deps.metricsHandler,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// shutdownTimeout bounds resource cleanup in dependencies.Close.
const shutdownTimeout = 5 * time.Second
