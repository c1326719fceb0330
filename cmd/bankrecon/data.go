package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jask/bankrecon/internal/config"
	"github.com/jask/bankrecon/internal/database"
	"github.com/jask/bankrecon/internal/database/repository"
	"github.com/jask/bankrecon/internal/testdata"
)

func init() {
	rootCmd.AddCommand(migrateCmd, importCmd, seedCmd)

	seedCmd.Flags().Int("sales", 12, "Number of pending sales to create")
	seedCmd.Flags().Int("settled", 8, "How many sales get a statement row")
	seedCmd.Flags().Int("noise", 4, "Unrelated debit rows in the statement")
	seedCmd.Flags().Int64("seed", time.Now().UnixNano(), "Random seed")
	seedCmd.Flags().String("statement", "demo-statement.csv", "Where to write the statement CSV")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return err
		}
		if err := database.Migrate(cfg.Database.Path); err != nil {
			return err
		}
		v, dirty, err := database.Version(cfg.Database.Path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%v)\n", v, dirty)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import ACCOUNT_ID FILE.csv",
	Short: "Import a CSV bank statement into an account",
	Long: `Import loads statement rows (date, description, amount, balance,
reference, external_id) into an account. Rows already stored are skipped.
Run reconcile-all or sync afterwards to match them.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(false)
		if err != nil {
			return err
		}
		defer a.close()
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		res, err := a.engine.ImportStatement(cmd.Context(), args[0], f)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "imported %d, skipped %d, errors %d\n", res.Imported, res.Skipped, len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintln(w, "  ", e)
		}
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create demo pending sales and a statement that settles some of them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(false)
		if err != nil {
			return err
		}
		defer a.close()
		sales, _ := cmd.Flags().GetInt("sales")
		settled, _ := cmd.Flags().GetInt("settled")
		noise, _ := cmd.Flags().GetInt("noise")
		seed, _ := cmd.Flags().GetInt64("seed")
		out, _ := cmd.Flags().GetString("statement")

		demo := testdata.Generate(testdata.Options{Sales: sales, Settled: settled, Noise: noise, Seed: seed})
		if err := demo.Seed(cmd.Context(), repository.NewSaleRepo(a.db)); err != nil {
			return err
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := demo.WriteStatement(f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %d sales, statement written to %s\n", len(demo.Sales), out)
		return nil
	},
}
