package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"reelpipe/internal/api"
	"reelpipe/internal/daemonrun"
	"reelpipe/internal/logging"
	"reelpipe/internal/queue"
	"reelpipe/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline pass in this process",
		Long: "Execute one pipeline pass in this process. The daemon lock is held " +
			"for the duration so a running daemon is never raced; use `reelpipe trigger` instead " +
			"when the daemon is up.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock := flock.New(cfg.LockPath())
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return errors.New("the daemon is running; use `reelpipe trigger` to start a run through it")
			}
			defer lock.Unlock() //nolint:errcheck

			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			return ctx.withStore(func(store *queue.Store) error {
				mgr := workflow.NewManager(cfg, store, daemonrun.NewCollaborators(cfg, logger), logger)
				report, runErr := mgr.RunOnce(cmd.Context())
				if asJSON {
					if err := writeJSON(cmd, api.FromRunReport(report)); err != nil {
						return err
					}
				} else {
					fmt.Fprint(cmd.OutOrStdout(), renderRunReport(report))
				}
				return runErr
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newTriggerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Ask the running daemon to start a pipeline run",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().TriggerRun(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s started\n", resp.RunID)
			return nil
		},
	}
}

func renderRunReport(report workflow.PipelineRunReport) string {
	rows := make([][]string, 0, len(report.Stages)+1)
	for _, s := range report.Stages {
		rows = append(rows, []string{
			s.Stage,
			strconv.Itoa(s.Selected),
			strconv.Itoa(s.Advanced),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Retried),
			strconv.Itoa(s.Skipped),
			s.Duration.Round(time.Millisecond).String(),
		})
	}
	total := report.Totals()
	rows = append(rows, []string{
		"total",
		strconv.Itoa(total.Selected),
		strconv.Itoa(total.Advanced),
		strconv.Itoa(total.Failed),
		strconv.Itoa(total.Retried),
		strconv.Itoa(total.Skipped),
		total.Duration.Round(time.Millisecond).String(),
	})
	right := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}
	out := fmt.Sprintf("Run %s (%s)\n", report.RunID, report.Trigger)
	out += renderTable([]string{"Stage", "Selected", "Advanced", "Failed", "Retried", "Skipped", "Duration"}, rows, right)
	if report.Error != "" {
		out += "Aborted: " + report.Error + "\n"
	}
	return out
}
