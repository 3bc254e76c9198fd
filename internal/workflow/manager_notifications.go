package workflow

import (
	"context"
	"errors"

	"reelpipe/internal/logging"
	"reelpipe/internal/notifications"
)

func (m *Manager) notifyRunCompleted(ctx context.Context, report PipelineRunReport) {
	totals := report.Totals()
	if totals.Advanced == 0 && totals.Failed == 0 {
		return
	}
	payload := notifications.Payload{
		"runID":    report.RunID,
		"trigger":  report.Trigger,
		"advanced": totals.Advanced,
		"failed":   totals.Failed,
		"duration": totals.Duration.Round(1e9).String(),
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), notifications.EventRunCompleted, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send run summary")
			return
		}
		m.logger.Debug("run summary notification failed", logging.Error(err))
	}
}
