package api

import (
	"sort"
	"time"

	"reelpipe/internal/queue"
	"reelpipe/internal/stage"
	"reelpipe/internal/stageexec"
	"reelpipe/internal/workflow"
)

// FromItem converts a queue item into its API representation.
func FromItem(item *queue.Item) Item {
	if item == nil {
		return Item{}
	}
	meta := item.Metadata()
	return Item{
		ID:            item.ID,
		SourceKey:     item.SourceKey,
		Target:        item.Target,
		Stage:         string(item.Stage),
		Terminal:      item.IsTerminal(),
		Fingerprint:   item.Fingerprint,
		PayloadRef:    item.PayloadRef,
		ProcessedRef:  item.ProcessedRef,
		Attempts:      item.Attempts,
		LastError:     item.LastError,
		NextAttemptAt: formatTimePtr(item.NextAttemptAt),
		PublishedID:   item.PublishedID,
		Version:       item.Version,
		CreatedAt:     formatTime(item.CreatedAt),
		UpdatedAt:     formatTime(item.UpdatedAt),
		Metadata: Metadata{
			Caption:           meta.Caption,
			SourceURL:         meta.SourceURL,
			Title:             meta.Title,
			Description:       meta.Description,
			Tags:              meta.Tags,
			DuplicateOf:       meta.DuplicateOf,
			DuplicateDistance: meta.DuplicateDistance,
		},
	}
}

// FromItems converts a slice of items.
func FromItems(items []*queue.Item) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, FromItem(item))
	}
	return out
}

// FromApproval converts an approval request.
func FromApproval(req queue.ApprovalRequest) Approval {
	return Approval{
		ItemID:    req.ItemID,
		Decision:  string(req.Decision),
		CreatedAt: formatTime(req.CreatedAt),
		DecidedBy: req.DecidedBy,
		DecidedAt: formatTimePtr(req.DecidedAt),
	}
}

// FromTarget converts an acquisition target.
func FromTarget(target queue.Target) Target {
	return Target{
		Name:          target.Name,
		Active:        target.Active,
		LastCheckedAt: formatTimePtr(target.LastCheckedAt),
		CreatedAt:     formatTime(target.CreatedAt),
	}
}

// FromStageRun converts one stage's run counters.
func FromStageRun(result stageexec.StageRunResult) StageRun {
	return StageRun{
		Stage:      result.Stage,
		Selected:   result.Selected,
		Advanced:   result.Advanced,
		Failed:     result.Failed,
		Retried:    result.Retried,
		Skipped:    result.Skipped,
		DurationMs: result.Duration.Milliseconds(),
	}
}

// FromRunReport converts a pipeline run report.
func FromRunReport(report workflow.PipelineRunReport) RunReport {
	stages := make([]StageRun, 0, len(report.Stages))
	for _, s := range report.Stages {
		stages = append(stages, FromStageRun(s))
	}
	return RunReport{
		RunID:      report.RunID,
		Trigger:    report.Trigger,
		StartedAt:  formatTime(report.StartedAt),
		FinishedAt: formatTime(report.FinishedAt),
		Stages:     stages,
		Error:      report.Error,
	}
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:     summary.Running,
		ActiveRuns:  summary.ActiveRuns,
		StageCounts: StageCounts(summary.StageCounts),
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
	for _, next := range summary.NextRuns {
		status.NextRuns = append(status.NextRuns, formatTime(next))
	}
	if summary.LastReport != nil {
		report := FromRunReport(*summary.LastReport)
		status.LastRun = &report
	}
	return status
}

// StageCounts returns counts for every lifecycle stage, zero-filled.
func StageCounts(stats map[queue.Stage]int) map[string]int {
	out := make(map[string]int, len(queue.AllStages()))
	for _, s := range queue.AllStages() {
		out[string(s)] = stats[s]
	}
	return out
}

// StageHealthSlice orders stage health by name.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for name, h := range health {
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
