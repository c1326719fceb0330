package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jask/bankrecon/internal/scheduler"
)

func init() {
	rootCmd.AddCommand(syncCmd, syncAllCmd, reconcileAllCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync ACCOUNT_ID",
	Short: "Fetch new transactions for one account and reconcile it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(true)
		if err != nil {
			return err
		}
		defer a.close()
		res, err := a.engine.SyncAccount(cmd.Context(), args[0])
		if perr := printJSON(cmd, res); perr != nil {
			return perr
		}
		return err
	},
}

var syncAllCmd = &cobra.Command{
	Use:   "sync-all",
	Short: "Sync every active account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBatch(cmd, true, func(r *scheduler.Runner) func(context.Context) (scheduler.BatchResult, error) {
			return r.SyncAll
		})
	},
}

var reconcileAllCmd = &cobra.Command{
	Use:   "reconcile-all",
	Short: "Run a reconcile pass over every active account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBatch(cmd, false, func(r *scheduler.Runner) func(context.Context) (scheduler.BatchResult, error) {
			return r.ReconcileAll
		})
	},
}

func runBatch(cmd *cobra.Command, withVault bool, pick func(*scheduler.Runner) func(context.Context) (scheduler.BatchResult, error)) error {
	a, err := setup(withVault)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()
	if a.cfg.Sync.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Sync.BatchTimeout)
		defer cancel()
	}
	res, err := pick(a.runner)(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}
