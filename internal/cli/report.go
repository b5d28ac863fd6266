package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dunamismax/webopt/internal/output"
)

var errLedgerDisabled = errors.New("result ledger is not configured (set LEDGER_DSN)")

func newReportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report <run-id>",
		Short: "List stored results of a run or batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, closeLedger, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeLedger()
			if ledger == nil {
				return errLedgerDisabled
			}

			results, err := ledger.ListResults(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(results) == 0 {
				return fmt.Errorf("no results stored for %s", args[0])
			}

			output.ResultsTable(cmd.OutOrStdout(), results)
			return nil
		},
	}
}
