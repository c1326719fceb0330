package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/bankrecon/internal/api"
	"github.com/jask/bankrecon/internal/scheduler"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().Bool("no-schedule", false, "Serve the API without the cron scheduler")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the sync/reconcile scheduler",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := setup(true)
	if err != nil {
		return err
	}
	defer a.close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	noSchedule, _ := cmd.Flags().GetBool("no-schedule")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sched *scheduler.Scheduler
	if !noSchedule {
		loc, _ := a.cfg.Location()
		sched, err = scheduler.New(a.runner, scheduler.Cadences{
			BusinessHours: a.cfg.Schedule.BusinessHours,
			OffHours:      a.cfg.Schedule.OffHours,
			Reconcile:     a.cfg.Schedule.Reconcile,
		}, loc, a.cfg.Sync.BatchTimeout, a.log)
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		sched.Start()
		a.log.Info("scheduler started", zap.Times("next_runs", sched.Entries()))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(a.engine, a.runner, a.metricsHandler(), a.log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("api listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			a.log.Warn("scheduler stop", zap.Error(err))
		}
	}
	return srv.Shutdown(shutdownCtx)
}
