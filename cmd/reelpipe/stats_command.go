package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reelpipe/internal/api"
	"reelpipe/internal/queue"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show item counts per stage and approval decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				stats, err := api.NewItemService(store).Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderStageCounts(stats.Stages))
				rows := [][]string{}
				for _, d := range []queue.Decision{queue.DecisionPending, queue.DecisionApproved, queue.DecisionRejected} {
					rows = append(rows, []string{string(d), strconv.Itoa(stats.Approvals[string(d)])})
				}
				fmt.Fprint(out, renderTable([]string{"Approval", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}
