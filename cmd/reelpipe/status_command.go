package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"reelpipe/internal/api"
	"reelpipe/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, stage and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status(cmd.Context())
			if errors.Is(err, api.ErrDaemonUnreachable) {
				return renderOfflineStatus(cmd, ctx, asJSON)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			renderDaemonStatus(cmd, status)
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func renderDaemonStatus(cmd *cobra.Command, status api.DaemonStatus) {
	out := cmd.OutOrStdout()
	p := newStatusPrinter(out)

	p.section("Daemon")
	p.line("Running", statusOK, fmt.Sprintf("pid %d", status.PID))
	p.line("Database", statusInfo, status.DatabasePath)
	p.line("Active runs", statusInfo, strconv.Itoa(status.Workflow.ActiveRuns))
	if len(status.Workflow.NextRuns) > 0 {
		p.line("Next run", statusInfo, status.Workflow.NextRuns[0])
	} else {
		p.line("Next run", statusWarn, "schedule disabled")
	}
	if run := status.Workflow.LastRun; run != nil {
		kind := statusOK
		detail := fmt.Sprintf("%s (%s) finished %s", run.RunID, run.Trigger, run.FinishedAt)
		if run.Error != "" {
			kind = statusError
			detail += ": " + run.Error
		}
		p.line("Last run", kind, detail)
	}
	fmt.Fprintln(out)

	p.section("Dependencies")
	for _, dep := range status.Dependencies {
		kind := statusOK
		if !dep.Available {
			kind = statusError
			if dep.Optional {
				kind = statusWarn
			}
		}
		p.line(dep.Name, kind, dep.Detail)
	}
	fmt.Fprintln(out)

	p.section("Stages")
	for _, h := range status.Workflow.StageHealth {
		p.check(h.Name, h.Ready, h.Detail)
	}
	fmt.Fprintln(out)

	fmt.Fprint(out, renderStageCounts(status.Workflow.StageCounts))
}

func renderOfflineStatus(cmd *cobra.Command, ctx *commandContext, asJSON bool) error {
	return ctx.withStore(func(store *queue.Store) error {
		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		counts := api.StageCounts(stats)
		if asJSON {
			return writeJSON(cmd, api.DaemonStatus{
				DatabasePath: store.Path(),
				Workflow:     api.WorkflowStatus{StageCounts: counts},
			})
		}
		out := cmd.OutOrStdout()
		p := newStatusPrinter(out)
		p.section("Daemon")
		p.line("Running", statusWarn, "not running; start it with `reelpipe daemon`")
		p.line("Database", statusInfo, store.Path())
		fmt.Fprintln(out)
		fmt.Fprint(out, renderStageCounts(counts))
		return nil
	})
}

func renderStageCounts(counts map[string]int) string {
	order := make(map[string]int, len(queue.AllStages()))
	for i, s := range queue.AllStages() {
		order[string(s)] = i
	}
	names := make([]string, 0, len(counts))
	for name, count := range counts {
		if count > 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "No items\n"
	}
	sort.Slice(names, func(i, j int) bool { return order[names[i]] < order[names[j]] })
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, strconv.Itoa(counts[name])})
	}
	return renderTable([]string{"Stage", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}
