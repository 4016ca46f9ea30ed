package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/sentinel/pkg/config"
	"github.com/cuemby/sentinel/pkg/coordinator"
	"github.com/cuemby/sentinel/pkg/metrics"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an embedded coordination store with metrics and health endpoints",
	Long: `serve starts sentinel's embedded coordinator (a single-node Raft group
backing a hierarchical, session-oriented node tree) and exposes its
metrics and health status over HTTP. It does not supervise a worker by
itself; pair it with the demo command, or link pkg/lifecycle and
pkg/discovery into your own process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file")
	serveCmd.Flags().String("data-dir", "", "Directory for the embedded coordinator's Raft log and node tree")
	serveCmd.Flags().String("bind-addr", "", "Address the metrics/health HTTP server listens on")
	serveCmd.Flags().Duration("session-timeout", 0, "Session lease TTL for the embedded coordinator")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	core, err := coordinator.NewEmbeddedCore(cfg.DataDir, cfg.SessionTimeout)
	if err != nil {
		return fmt.Errorf("failed to start embedded coordinator: %w", err)
	}

	metrics.SetVersion(Version)
	metrics.RegisterComponent("coordinator", true, "raft group leader elected")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	server := &http.Server{Addr: cfg.BindAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	fmt.Printf("sentinel coordinator listening; metrics/health on http://%s\n", cfg.BindAddr)
	fmt.Println("Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nmetrics server error: %v\n", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	return core.Close()
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("bind-addr"); v != "" {
		cfg.BindAddr = v
	}
	if v, _ := cmd.Flags().GetDuration("session-timeout"); v != 0 {
		cfg.SessionTimeout = v
	}
	return cfg, nil
}
