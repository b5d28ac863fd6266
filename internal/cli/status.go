package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dunamismax/webopt/internal/output"
	"github.com/dunamismax/webopt/internal/progress"
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <batch-id>",
		Short: "Show progress of an enqueued batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rdb := a.redisClient()
			defer rdb.Close()

			tracker, err := progress.NewTracker(rdb, "", progressTTL)
			if err != nil {
				return err
			}
			snap, err := tracker.Snapshot(cmd.Context(), args[0])
			if errors.Is(err, progress.ErrBatchNotFound) {
				return fmt.Errorf("no batch %s (it may have expired)", args[0])
			}
			if err != nil {
				return err
			}

			printSnapshot(a, cmd, snap)
			return nil
		},
	}
}

func printSnapshot(a *app, cmd *cobra.Command, snap progress.Snapshot) {
	state := "running"
	if snap.Done() {
		state = "completed"
	}

	table := output.NewTable(cmd.OutOrStdout(), []string{"Batch", "State", "Total", "Succeeded", "Failed", "Pending"})
	table.AddRow([]string{
		snap.BatchID,
		state,
		strconv.FormatInt(snap.Total, 10),
		strconv.FormatInt(snap.Succeeded, 10),
		strconv.FormatInt(snap.Failed, 10),
		strconv.FormatInt(max(0, snap.Total-snap.Finished()), 10),
	})
	table.Render()

	for _, line := range snap.Failures {
		a.printer.Error("%s", line)
	}
}
