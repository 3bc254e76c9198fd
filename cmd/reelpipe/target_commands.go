package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reelpipe/internal/api"
	"reelpipe/internal/queue"
)

func newTargetsCommand(ctx *commandContext) *cobra.Command {
	targetsCmd := &cobra.Command{
		Use:   "targets",
		Short: "Manage acquisition targets",
	}

	targetsCmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Add or reactivate a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				target, err := store.AddTarget(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Target %s active\n", target.Name)
				return nil
			})
		},
	})

	targetsCmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Deactivate a target; its items are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				ok, err := store.DeactivateTarget(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("target %s not found", queue.NormalizeTargetName(args[0]))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Target %s deactivated\n", queue.NormalizeTargetName(args[0]))
				return nil
			})
		},
	})

	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				targets, err := api.NewItemService(store).Targets(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.TargetListResponse{Targets: targets})
				}
				out := cmd.OutOrStdout()
				if len(targets) == 0 {
					fmt.Fprintln(out, "No targets")
					return nil
				}
				rows := make([][]string, 0, len(targets))
				for i, t := range targets {
					checked := t.LastCheckedAt
					if checked == "" {
						checked = "never"
					}
					rows = append(rows, []string{strconv.Itoa(i + 1), t.Name, yesNo(t.Active), checked})
				}
				fmt.Fprint(out, renderTable([]string{"#", "Name", "Active", "Last checked"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
				return nil
			})
		},
	}
	addJSONFlag(listCmd, &asJSON)
	targetsCmd.AddCommand(listCmd)

	return targetsCmd
}
