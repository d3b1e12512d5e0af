package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/api"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/cache"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/executor"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/log"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/metrics"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/portforward"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/provision"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagAddr     string
	flagLogLevel string
	flagLogJSON  bool
	flagCacheTTL time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Dashboard - EKS cluster lifecycle server",
	Long: `Dashboard is a local web server for managing AWS EKS clusters.

It orchestrates the eksctl, kubectl, and aws CLIs on the operator's
behalf, streaming their output to the browser over WebSockets, and
exposes a small REST surface for inspecting cluster resources.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Dashboard version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	serveCmd.Flags().StringVar(&flagAddr, "addr", "127.0.0.1:8080", "address to listen on")
	serveCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&flagLogJSON, "log-json", false, "emit logs as JSON instead of console output")
	serveCmd.Flags().DurationVar(&flagCacheTTL, "cache-ttl", 15*time.Second, "freshness window for cached kubectl reads")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(toolsCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Init(log.Config{Level: log.Level(flagLogLevel), JSONOutput: flagLogJSON})
		metrics.Register()

		// Missing tools are a warning, not a startup failure: the read-only
		// surface works with kubectl alone
		for tool, err := range executor.LookupTools("eksctl", "kubectl", "aws") {
			if err != nil {
				log.Logger.Warn().Str("tool", tool).Msg("not found on PATH; dependent operations will fail")
			}
		}

		runner := executor.NewCLIRunner()
		app := &api.App{
			Runner:   runner,
			Cache:    cache.New(),
			Orch:     provision.New(runner, provision.Options{}),
			Forwards: portforward.NewManager(),
			CacheTTL: flagCacheTTL,
		}
		server := api.NewServer(app, flagAddr)

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil {
				errCh <- fmt.Errorf("server error: %v", err)
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("shutting down")
		case err := <-errCh:
			return err
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down cleanly: %v", err)
		}
		app.Forwards.Stop()
		return nil
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Check that the required CLI tools are on PATH",
	RunE: func(cmd *cobra.Command, args []string) error {
		missing := 0
		for _, tool := range []string{"eksctl", "kubectl", "aws"} {
			if err := executor.LookupTools(tool)[tool]; err != nil {
				fmt.Printf("✗ %s: not found\n", tool)
				missing++
			} else {
				fmt.Printf("✓ %s\n", tool)
			}
		}
		if missing > 0 {
			return fmt.Errorf("%d required tool(s) missing", missing)
		}
		return nil
	},
}
