package workflow

import (
	"context"
	"time"

	"reelpipe/internal/acquisition"
	"reelpipe/internal/deps"
	"reelpipe/internal/notifications"
	"reelpipe/internal/publishing"
	"reelpipe/internal/queue"
	"reelpipe/internal/stage"
	"reelpipe/internal/stageexec"
	"reelpipe/internal/transform"
)

// Trigger values recorded on each run.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"
	TriggerWatch    = "watch"
)

// Collaborators are the external systems the pipeline talks to.
type Collaborators struct {
	Source       acquisition.Source
	Engine       transform.Engine
	Publisher    publishing.Publisher
	Notifier     notifications.Service
	Requirements []deps.Requirement
}

// PipelineRunReport is the outcome of one RunOnce.
type PipelineRunReport struct {
	RunID      string                     `json:"run_id"`
	Trigger    string                     `json:"trigger"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Stages     []stageexec.StageRunResult `json:"stages"`
	Error      string                     `json:"error,omitempty"`
}

// Totals sums the per-stage counters.
func (r PipelineRunReport) Totals() stageexec.StageRunResult {
	var total stageexec.StageRunResult
	for _, s := range r.Stages {
		total.Selected += s.Selected
		total.Advanced += s.Advanced
		total.Failed += s.Failed
		total.Retried += s.Retried
		total.Skipped += s.Skipped
	}
	total.Duration = r.FinishedAt.Sub(r.StartedAt)
	return total
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool                    `json:"running"`
	ActiveRuns  int                     `json:"active_runs"`
	NextRuns    []time.Time             `json:"next_runs,omitempty"`
	LastReport  *PipelineRunReport      `json:"last_report,omitempty"`
	LastError   string                  `json:"last_error,omitempty"`
	StageCounts map[queue.Stage]int     `json:"stage_counts"`
	StageHealth map[string]stage.Health `json:"stage_health"`
}

type pipelineStep struct {
	name    string
	handler stage.Handler
	run     func(ctx context.Context) (stageexec.StageRunResult, error)
}
