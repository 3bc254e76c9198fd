package dedupe

import (
	"context"
	"log/slog"

	"reelpipe/internal/logging"
	"reelpipe/internal/queue"
	"reelpipe/internal/stage"
)

// StageName labels the dedupe stage.
const StageName = "dedupe"

// Stage adapts the gate to the stage executor.
type Stage struct {
	gate   *Gate
	logger *slog.Logger
}

// NewStage constructs the dedupe stage handler.
func NewStage(gate *Gate, logger *slog.Logger) *Stage {
	return &Stage{gate: gate, logger: logging.NewComponentLogger(logger, StageName)}
}

// Prepare is a no-op; classification needs only the stored fingerprint.
func (s *Stage) Prepare(context.Context, *queue.Item) error {
	return nil
}

// Execute classifies the item and moves it to unique or duplicate.
func (s *Stage) Execute(ctx context.Context, item *queue.Item) error {
	result, err := s.gate.Classify(ctx, item)
	if err != nil {
		return err
	}
	logger := logging.WithContext(ctx, s.logger)
	if result.Verdict == VerdictDuplicate {
		meta := item.Metadata()
		meta.DuplicateOf = result.MatchedID
		meta.DuplicateDistance = result.Distance
		item.SetMetadata(meta)
		item.Stage = queue.StageDuplicate
		logger.Info("duplicate content rejected",
			logging.String(logging.FieldEventType, "dedupe_duplicate"),
			logging.Int64("matched_item_id", result.MatchedID),
			logging.Int("distance", result.Distance),
		)
		return nil
	}
	item.Stage = queue.StageUnique
	logger.Info("content accepted as unique",
		logging.String(logging.FieldEventType, "dedupe_unique"),
	)
	return nil
}

// HealthCheck reports the stage as ready; it depends only on the store.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(StageName)
}
