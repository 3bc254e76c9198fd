package api

import (
	"testing"
	"time"

	"reelpipe/internal/stage"
	"reelpipe/internal/stageexec"
	"reelpipe/internal/workflow"
)

func TestFromStatusSummary(t *testing.T) {
	started := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	summary := workflow.StatusSummary{
		Running:  true,
		NextRuns: []time.Time{started.Add(time.Hour)},
		LastReport: &workflow.PipelineRunReport{
			RunID:      "run-1",
			Trigger:    workflow.TriggerSchedule,
			StartedAt:  started,
			FinishedAt: started.Add(2 * time.Second),
			Stages: []stageexec.StageRunResult{
				{Stage: "publish", Selected: 2, Advanced: 1, Failed: 1, Duration: 1500 * time.Millisecond},
			},
		},
		StageHealth: map[string]stage.Health{
			"transform": stage.Unhealthy("transform", "ffmpeg missing"),
			"dedupe":    stage.Healthy("dedupe"),
		},
	}

	got := FromStatusSummary(summary)
	if !got.Running || len(got.NextRuns) != 1 || got.NextRuns[0] != "2026-03-01T04:00:00.000Z" {
		t.Fatalf("unexpected schedule fields: %+v", got)
	}
	if got.LastRun == nil || got.LastRun.RunID != "run-1" || got.LastRun.Stages[0].DurationMs != 1500 {
		t.Fatalf("unexpected last run: %+v", got.LastRun)
	}
	if len(got.StageHealth) != 2 || got.StageHealth[0].Name != "dedupe" || got.StageHealth[1].Ready {
		t.Fatalf("expected health sorted by name, got %+v", got.StageHealth)
	}
	if got.StageCounts["acquired"] != 0 {
		t.Fatalf("expected zero-filled counts, got %v", got.StageCounts)
	}
}
