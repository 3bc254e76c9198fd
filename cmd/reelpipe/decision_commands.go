package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"reelpipe/internal/approval"
	"reelpipe/internal/queue"
)

func newDecisionCommand(ctx *commandContext, approve bool) *cobra.Command {
	use, short, decision := "reject <id>", "Reject an item awaiting approval", queue.DecisionRejected
	if approve {
		use, short, decision = "approve <id>", "Approve an item for publishing", queue.DecisionApproved
	}

	var by string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			decider := strings.TrimSpace(by)
			if decider == "" {
				decider = defaultDecider()
			}
			return ctx.withStore(func(store *queue.Store) error {
				req, err := approval.NewGate(store).Decide(cmd.Context(), id, decision, decider)
				switch {
				case errors.Is(err, approval.ErrNotFound):
					return fmt.Errorf("item %d has no approval request", id)
				case approval.IsConflict(err):
					return fmt.Errorf("item %d cannot be decided: %w", id, err)
				case err != nil:
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d %s by %s\n", id, req.Decision, req.DecidedBy)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "Decider identity (defaults to $USER)")
	return cmd
}

func defaultDecider() string {
	if user := strings.TrimSpace(os.Getenv("USER")); user != "" {
		return user
	}
	return "cli"
}
