package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reelpipe/internal/logging"
	"reelpipe/internal/metrics"
	"reelpipe/internal/queue"
	"reelpipe/internal/services"
	"reelpipe/internal/stageexec"
	"reelpipe/internal/staging"
)

// RunOnce runs every pipeline step once, in order. A step whose items fail
// does not stop the run; a step that cannot start does, and its error is
// returned with the partial report.
func (m *Manager) RunOnce(ctx context.Context) (PipelineRunReport, error) {
	return m.run(ctx, newRunID(), TriggerManual)
}

// TriggerRun starts a run in the background and returns its run id.
func (m *Manager) TriggerRun(trigger string) string {
	runID := newRunID()
	m.mu.RLock()
	ctx := m.baseCtx
	m.mu.RUnlock()

	m.runs.Add(1)
	go func() {
		defer m.runs.Done()
		_, _ = m.run(ctx, runID, trigger)
	}()
	return runID
}

func (m *Manager) run(ctx context.Context, runID, trigger string) (PipelineRunReport, error) {
	if trigger == "" {
		trigger = TriggerManual
	}
	ctx = services.WithRequestID(services.WithTrigger(ctx, trigger), runID)
	logger := logging.WithContext(ctx, m.logger)

	m.mu.Lock()
	m.active++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	report := PipelineRunReport{
		RunID:     runID,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	logger.Info("pipeline run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("steps", len(m.steps)),
	)

	var runErr error
	for _, step := range m.steps {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		result, err := step.run(ctx)
		if result.Stage == "" {
			result.Stage = step.name
		}
		report.Stages = append(report.Stages, result)
		if err != nil {
			runErr = fmt.Errorf("%s: %w", step.name, err)
			logging.ErrorWithContext(logger, "pipeline run aborted", "run_aborted",
				logging.String(logging.FieldStage, step.name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "later stages skipped until the next run"),
			)
			break
		}
	}
	m.sweepStaging(ctx, logger)
	report.FinishedAt = time.Now().UTC()
	if runErr != nil {
		report.Error = runErr.Error()
	}

	m.recordRun(ctx, report, runErr)

	totals := report.Totals()
	logger.Info("pipeline run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("advanced", totals.Advanced),
		logging.Int("failed", totals.Failed),
		logging.Int("retried", totals.Retried),
		logging.Int("skipped", totals.Skipped),
		logging.Duration("duration", totals.Duration),
		logging.Bool("aborted", runErr != nil),
	)
	m.notifyRunCompleted(ctx, report)
	return report, runErr
}

func (m *Manager) recordRun(ctx context.Context, report PipelineRunReport, runErr error) {
	result := "ok"
	switch {
	case errors.Is(runErr, stageexec.ErrStageUnavailable):
		result = "unavailable"
	case runErr != nil:
		result = "error"
	}
	metrics.PipelineRuns.WithLabelValues(report.Trigger, result).Inc()
	metrics.PipelineRunSeconds.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	if stats, err := m.store.Stats(context.WithoutCancel(ctx)); err == nil {
		counts := make(map[string]int, len(stats))
		for stage, count := range stats {
			counts[string(stage)] = count
		}
		metrics.SetItemsByStage(counts)
	}

	m.mu.Lock()
	copyReport := report
	m.lastReport = &copyReport
	m.lastErr = runErr
	m.mu.Unlock()
}

// sweepStaging removes work directories of items that reached a terminal
// stage. It is skipped while another run is in flight since that run may be
// writing directories for items created after the snapshot.
func (m *Manager) sweepStaging(ctx context.Context, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	m.mu.RLock()
	concurrent := m.active > 1
	m.mu.RUnlock()
	if concurrent {
		return
	}

	var open []queue.Stage
	for _, stage := range queue.AllStages() {
		if !queue.IsTerminal(stage) {
			open = append(open, stage)
		}
	}
	items, err := m.store.List(ctx, open...)
	if err != nil {
		logging.WarnWithContext(logger, "staging sweep skipped", "staging_sweep_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "staging directories of finished items retained"),
		)
		return
	}
	active := make(map[int64]struct{}, len(items))
	for _, item := range items {
		active[item.ID] = struct{}{}
	}

	result := staging.Sweep(ctx, m.cfg.Paths.StagingDir, active, logger)
	if len(result.Removed) > 0 || len(result.Errors) > 0 {
		logger.Info("staging sweep completed",
			logging.String(logging.FieldEventType, "staging_sweep"),
			logging.Int("removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
		)
	}
}

func newRunID() string {
	return uuid.NewString()
}
