package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/livefind/internal/api"
	"github.com/wesm/livefind/internal/indexer"
	"github.com/wesm/livefind/internal/livesearch"
	"github.com/wesm/livefind/internal/scheduler"
)

// primeTimeout bounds the priming query run when a session opens.
const primeTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live-search HTTP API with scheduled re-indexing",
	Long: `Run livefind as a long-running daemon that serves live-search sessions
over HTTP and re-indexes roots on schedule.

The daemon runs in the foreground and provides:
  - HTTP API server on the configured port (default: 8080)
  - One debounced search coordinator per API session, with results
    streamed as server-sent events
  - Scheduled re-indexing of every configured root

Configure in config.toml:
  [index]
  roots = ["~/Documents"]
  schedule = "0 * * * *"   # hourly (cron format)

  [server]
  api_port = 8080
  api_key = "change-me"

Cron format: minute hour day-of-month month day-of-week
  Examples:
    0 2 * * *     = 2:00 AM daily
    */15 * * * *  = Every 15 minutes
    0 8,18 * * *  = 8 AM and 6 PM daily

Use Ctrl+C to stop the daemon gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ccfg, err := coordinatorConfig(cfg)
	if err != nil {
		return err
	}

	ix, err := openIndexDB()
	if err != nil {
		return err
	}
	defer ix.Close()

	idx := indexer.New(ix.store, indexerOptions(cfg, nil))
	sched := scheduler.New(func(ctx context.Context, root string) error {
		_, err := idx.IndexRoot(ctx, root)
		return err
	}).WithLogger(logger)

	count, errs := sched.AddRootsFromConfig(cfg)
	for _, err := range errs {
		logger.Error("failed to schedule root", "error", err)
	}
	if count == 0 {
		logger.Info("no roots scheduled for re-indexing, serving the existing index")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	defaults := searchOptions(cfg)
	factory := func(pub livesearch.Publisher) (*livesearch.Coordinator, error) {
		coord := livesearch.NewCoordinator(ix.backend, ix.builder, pub, ccfg)
		primeCtx, primeCancel := context.WithTimeout(ctx, primeTimeout)
		defer primeCancel()
		if err := coord.Init(primeCtx, defaults); err != nil {
			logger.Warn("session priming failed", "error", err)
		}
		return coord, nil
	}

	sched.Start()

	apiServer := api.NewServer(cfg, ix.store, sched, factory, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("livefind daemon started\n")
	fmt.Printf("  API server: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.APIPort)))
	fmt.Printf("  Scheduled roots: %d\n", count)
	fmt.Printf("  Index: %s\n", cfg.DatabasePath())
	fmt.Println()
	for _, status := range sched.Status() {
		fmt.Printf("  %s: next re-index at %s\n", status.Root, status.NextRun.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		fmt.Println("\nShutting down...")
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		runErr = fmt.Errorf("api server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	fmt.Println("Waiting for running re-index jobs to complete...")
	schedCtx := sched.Stop()
	select {
	case <-schedCtx.Done():
		fmt.Println("Shutdown complete.")
	case <-time.After(30 * time.Second):
		fmt.Println("Shutdown timed out after 30 seconds.")
	}

	return runErr
}
