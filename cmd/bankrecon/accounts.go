package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jask/bankrecon/internal/service"
)

func init() {
	rootCmd.AddCommand(institutionsCmd, connectCmd, accountsCmd, deactivateCmd, statusCmd, reviewsCmd, reconcileCmd)

	connectCmd.Flags().String("kind", "checking", "Account kind")
	connectCmd.Flags().StringToString("cred", nil, "Institution credential, repeatable (key=value)")

	reconcileCmd.Flags().String("notes", "", "Notes stored with the reconciliation")
	reconcileCmd.Flags().String("actor", "", "Who made the decision (defaults to $USER)")
}

var institutionsCmd = &cobra.Command{
	Use:   "institutions",
	Short: "List institutions that sync through an adapter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(false)
		if err != nil {
			return err
		}
		defer a.close()
		w := cmd.OutOrStdout()
		for _, code := range a.banks.Codes() {
			inst, _ := a.banks.Institution(code)
			fmt.Fprintf(w, "%-10s %-20s credentials: %s\n", code, inst.Name, strings.Join(inst.Credentials, ", "))
		}
		fmt.Fprintln(w, "other catalog entries (e.g. generic) connect without sync; load them with import")
		return nil
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect INSTITUTION ACCOUNT_NUMBER",
	Short: "Connect a bank account and run its first sync",
	Long: `Connect stores the credentials encrypted with the vault master secret
and runs an initial sync. A failed first sync is reported but the account
stays connected.`,
	Example: "  bankrecon connect bbva 0123456789 --cred client_id=abc --cred client_secret=xyz",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(true)
		if err != nil {
			return err
		}
		defer a.close()
		kind, _ := cmd.Flags().GetString("kind")
		creds, _ := cmd.Flags().GetStringToString("cred")
		res, err := a.engine.ConnectAccount(cmd.Context(), service.ConnectRequest{
			InstitutionCode: args[0],
			AccountNumber:   args[1],
			AccountKind:     kind,
			Credentials:     creds,
		})
		if err != nil {
			return err
		}
		if !a.banks.Supported(args[0]) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s has no sync adapter; load statements with: bankrecon import %s FILE.csv\n", args[0], res.AccountID)
		}
		return printJSON(cmd, res)
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List connected accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(false)
		if err != nil {
			return err
		}
		defer a.close()
		accts, err := a.engine.ListAccounts(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, acct := range accts {
			state := "active"
			if !acct.Active {
				state = "inactive"
			}
			fmt.Fprintf(w, "%s  %-10s %s  %-8s %s\n", acct.ID, acct.InstitutionCode, acct.MaskedAccountNumber, state, acct.SyncStatus)
		}
		return nil
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate ACCOUNT_ID",
	Short: "Stop syncing an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(false)
		if err != nil {
			return err
		}
		defer a.close()
		return a.engine.DeactivateAccount(cmd.Context(), args[0])
	},
}

var statusCmd = &cobra.Command{
	Use:   "status ACCOUNT_ID",
	Short: "Show reconciliation progress for an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(false)
		if err != nil {
			return err
		}
		defer a.close()
		rep, err := a.engine.ReconciliationStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, rep)
	},
}

var reviewsCmd = &cobra.Command{
	Use:   "reviews ACCOUNT_ID",
	Short: "List credits waiting for a manual match decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(false)
		if err != nil {
			return err
		}
		defer a.close()
		reviews, err := a.engine.PendingReviews(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(reviews) == 0 {
			fmt.Fprintln(w, "no pending reviews")
			return nil
		}
		for _, r := range reviews {
			fmt.Fprintf(w, "%s  candidates: %s  (similarity %.2f)\n", r.TransactionID, strings.Join(r.CandidateSaleIDs, ", "), r.BestSimilarity)
		}
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile TRANSACTION_ID SALE_ID",
	Short: "Manually reconcile a transaction with a sale",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(false)
		if err != nil {
			return err
		}
		defer a.close()
		notes, _ := cmd.Flags().GetString("notes")
		actor, _ := cmd.Flags().GetString("actor")
		if actor == "" {
			actor = os.Getenv("USER")
		}
		rec, err := a.engine.ManualReconcile(cmd.Context(), service.ManualRequest{
			TransactionID: args[0],
			SaleID:        args[1],
			Notes:         notes,
			ActorID:       actor,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reconciled %s -> %s (%s)\n", rec.TransactionID, rec.SaleID, rec.ID)
		return nil
	},
}
