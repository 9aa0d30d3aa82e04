package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/indicator-pipeline/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "List provenance ledger entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFlag, _ := cmd.Flags().GetString("status")
		status, err := parseStatus(statusFlag)
		if err != nil {
			return err
		}

		l := ledger.NewCSV(cfg.Paths.Ledger)
		entries, err := l.List(cmd.Context())
		if err != nil {
			return err
		}
		entries = ledger.Filter(entries, status)

		w := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintf(w, "No ledger entries in %s.\n", l.Path())
			return nil
		}
		return formatLedger(w, entries)
	},
}

var ledgerSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Backfill the configured ledger mirror from the ledger file",
	Long:  "Copies every CSV ledger entry the SQLite or Postgres mirror is missing. Entries already mirrored are not copied again.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Ledger.Mirror == "" {
			return eris.New("ledger: no mirror configured (set ledger.mirror to sqlite or postgres)")
		}
		mirror, err := openMirror(cmd.Context(), cfg.Ledger)
		if err != nil {
			return err
		}
		defer mirror.Close() //nolint:errcheck

		primary := ledger.NewCSV(cfg.Paths.Ledger)
		res, err := ledger.Sync(cmd.Context(), primary, mirror)
		if err != nil {
			return eris.Wrap(err, "ledger: sync")
		}
		printSyncResult(cmd.OutOrStdout(), res, primary.Path(), cfg.Ledger.Mirror)
		return nil
	},
}

func parseStatus(s string) (ledger.Status, error) {
	switch st := ledger.Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case "", ledger.StatusIngested, ledger.StatusFailed:
		return st, nil
	default:
		return "", eris.Errorf("ledger: unknown status %q (valid: INGESTED, FAILED)", s)
	}
}

func init() {
	ledgerCmd.Flags().String("status", "", "only show entries with this status (INGESTED or FAILED)")
	ledgerCmd.AddCommand(ledgerSyncCmd)
	rootCmd.AddCommand(ledgerCmd)
}
