package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/intexuraos/orchestrator/internal/metrics"
	"github.com/intexuraos/orchestrator/internal/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestrator daemon",
	Long: `Run the orchestrator event loop: watch task logs for completions,
reconcile state against live sessions on startup, replay queued webhooks
periodically, and serve metrics when enabled. Stops on SIGINT/SIGTERM.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.Error("metrics listener failed", "addr", a.cfg.Metrics.Addr, "error", err.Error())
			}
		}()
		defer srv.Close()
		a.log.Info("metrics listening", "addr", a.cfg.Metrics.Addr)
	}

	watcher, err := orchestrator.NewLogWatcher(a.cfg.Paths.ResolveLogDir(), a.log)
	if err != nil {
		return fmt.Errorf("creating log watcher: %w", err)
	}

	a.log.Info("orchestrator running", "state_file", a.store.Path())
	return a.controller.Run(ctx, watcher)
}
