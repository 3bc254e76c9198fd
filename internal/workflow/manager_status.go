package workflow

import (
	"context"
	"slices"
	"time"

	"reelpipe/internal/logging"
	"reelpipe/internal/stage"
)

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:    m.cancel != nil,
		ActiveRuns: m.active,
	}
	if m.lastReport != nil {
		copyReport := *m.lastReport
		summary.LastReport = &copyReport
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.scheduler != nil {
		for _, entry := range m.scheduler.Entries() {
			if !entry.Next.IsZero() {
				summary.NextRuns = append(summary.NextRuns, entry.Next)
			}
		}
	}
	m.mu.RUnlock()
	slices.SortFunc(summary.NextRuns, time.Time.Compare)

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read item stats",
			logging.Error(err),
			logging.String(logging.FieldEventType, "status_stats_failed"),
		)
	}
	summary.StageCounts = stats

	summary.StageHealth = make(map[string]stage.Health, len(m.steps))
	for _, step := range m.steps {
		if step.handler == nil {
			continue
		}
		summary.StageHealth[step.name] = step.handler.HealthCheck(ctx)
	}
	return summary
}
