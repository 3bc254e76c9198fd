package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"reelpipe/internal/config"
	"reelpipe/internal/logging"
)

// Start registers one cron entry per configured schedule time. Runs started
// by the schedule or TriggerRun are cancelled by Stop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return errors.New("workflow already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	var scheduler *cron.Cron
	if m.cfg.Schedule.Enabled {
		loc, err := m.cfg.Location()
		if err != nil {
			cancel()
			return fmt.Errorf("schedule timezone: %w", err)
		}
		scheduler = cron.New(cron.WithLocation(loc))
		for _, value := range m.cfg.Schedule.Times {
			hour, minute, err := config.ParseClock(value)
			if err != nil {
				cancel()
				return err
			}
			spec := fmt.Sprintf("%d %d * * *", minute, hour)
			if _, err := scheduler.AddFunc(spec, func() {
				m.scheduledRun(runCtx)
			}); err != nil {
				cancel()
				return fmt.Errorf("schedule %q: %w", value, err)
			}
		}
		scheduler.Start()
		m.logger.Info("pipeline schedule started",
			logging.String(logging.FieldEventType, "schedule_start"),
			logging.String("times", strings.Join(m.cfg.Schedule.Times, ",")),
			logging.String("timezone", loc.String()),
		)
	} else {
		m.logger.Info("pipeline schedule disabled; runs are manual only",
			logging.String(logging.FieldEventType, "schedule_disabled"),
		)
	}

	m.baseCtx = runCtx
	m.cancel = cancel
	m.scheduler = scheduler
	return nil
}

// Stop halts the schedule, cancels in-flight runs and waits for them.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	scheduler := m.scheduler
	m.cancel = nil
	m.scheduler = nil
	m.baseCtx = context.Background()
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	cancel()
	m.runs.Wait()
}

func (m *Manager) scheduledRun(ctx context.Context) {
	m.runs.Add(1)
	defer m.runs.Done()
	if ctx.Err() != nil {
		return
	}
	_, _ = m.run(ctx, newRunID(), TriggerSchedule)
}
