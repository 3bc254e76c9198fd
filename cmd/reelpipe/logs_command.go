package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelpipe/internal/logs"
	"reelpipe/internal/queue"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		level  string
		itemID int64
		stage  string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			filter := logs.Filter{ItemID: itemID}
			if strings.TrimSpace(level) != "" {
				var min slog.Level
				if err := min.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
					return fmt.Errorf("invalid --level %q", level)
				}
				filter.MinLevel = min
			}
			if strings.TrimSpace(stage) != "" {
				parsed, ok := queue.ParseStage(stage)
				if !ok {
					filter.Stage = strings.TrimSpace(stage)
				} else {
					filter.Stage = string(parsed)
				}
			}

			path := logs.CurrentPath(cfg.Paths.LogDir)
			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			emit := func(line string) {
				if filter.Match(line) {
					fmt.Fprintln(out, line)
				}
			}
			for _, line := range tail {
				emit(line)
			}
			if !follow {
				if len(tail) == 0 && offset == 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "no daemon log at %s\n", path)
				}
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, 250*time.Millisecond, emit)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().Int64Var(&itemID, "item", 0, "Only show lines for this item id")
	cmd.Flags().StringVar(&stage, "stage", "", "Only show lines for this stage or pipeline step")
	return cmd
}
