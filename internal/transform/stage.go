package transform

import (
	"context"
	"log/slog"
	"strings"

	"reelpipe/internal/deps"
	"reelpipe/internal/logging"
	"reelpipe/internal/queue"
	"reelpipe/internal/stage"
)

// StageName labels the transform stage.
const StageName = "transform"

// Stage adapts an Engine to the stage executor.
type Stage struct {
	engine       Engine
	requirements []deps.Requirement
	logger       *slog.Logger
}

// NewStage wires an engine. requirements are checked on every health check.
func NewStage(engine Engine, requirements []deps.Requirement, logger *slog.Logger) *Stage {
	return &Stage{
		engine:       engine,
		requirements: requirements,
		logger:       logging.NewComponentLogger(logger, StageName),
	}
}

// Prepare checks the raw media is still on disk.
func (s *Stage) Prepare(_ context.Context, item *queue.Item) error {
	return stage.RequireFile(StageName, "input", item.PayloadRef)
}

// Execute runs the engine and records the processed reference and fingerprint.
func (s *Stage) Execute(ctx context.Context, item *queue.Item) error {
	result, err := s.engine.Transform(ctx, Request{ItemID: item.ID, PayloadRef: item.PayloadRef, Target: item.Target})
	if err != nil {
		return err
	}
	item.ProcessedRef = result.ProcessedRef
	if result.ThumbnailRef != "" {
		meta := item.Metadata()
		meta.Thumbnail = result.ThumbnailRef
		item.SetMetadata(meta)
	}
	item.Fingerprint = result.Fingerprint.String()
	item.Stage = queue.StageTransformed
	logging.WithContext(ctx, s.logger).Info("item transformed",
		logging.String(logging.FieldEventType, "transform_complete"),
		logging.String("processed_ref", item.ProcessedRef),
		logging.String("fingerprint", item.Fingerprint),
	)
	return nil
}

// HealthCheck reports whether the required binaries are installed.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.engine == nil {
		return stage.Unhealthy(StageName, "transform engine not configured")
	}
	missing := deps.Missing(deps.CheckBinaries(s.requirements))
	if len(missing) == 0 {
		return stage.Healthy(StageName)
	}
	details := make([]string, 0, len(missing))
	for _, status := range missing {
		details = append(details, status.Name+": "+status.Detail)
	}
	return stage.Unhealthy(StageName, strings.Join(details, "; "))
}
