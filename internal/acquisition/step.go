package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reelpipe/internal/logging"
	"reelpipe/internal/metrics"
	"reelpipe/internal/queue"
	"reelpipe/internal/services"
	"reelpipe/internal/stageexec"
)

// StageName labels the acquire step in reports, logs and metrics.
const StageName = "acquire"

// Store is the persistence the acquire step needs.
type Store interface {
	ListTargets(ctx context.Context, activeOnly bool) ([]queue.Target, error)
	GetBySourceKey(ctx context.Context, sourceKey string) (*queue.Item, error)
	CreateItem(ctx context.Context, in queue.NewItem) (*queue.Item, error)
	MarkTargetChecked(ctx context.Context, name string, at time.Time) error
}

// Step polls every active target and records new posts as acquired items.
type Step struct {
	store  Store
	source Source
	limit  int
	logger *slog.Logger
}

// NewStep constructs the acquire step. limit caps posts fetched per target.
func NewStep(store Store, source Source, limit int, logger *slog.Logger) *Step {
	return &Step{
		store:  store,
		source: source,
		limit:  limit,
		logger: logging.NewComponentLogger(logger, StageName),
	}
}

// Run fetches each active target in name order. Known source keys are
// skipped. The step is unavailable only when targets cannot be listed or
// every target fails to fetch.
func (s *Step) Run(ctx context.Context) (stageexec.StageRunResult, error) {
	started := time.Now()
	result := stageexec.StageRunResult{Stage: StageName}
	ctx = logging.WithStage(ctx, StageName)
	logger := logging.WithContext(ctx, s.logger)

	targets, err := s.store.ListTargets(ctx, true)
	if err != nil {
		return result, fmt.Errorf("%w: list targets: %w", stageexec.ErrStageUnavailable, err)
	}
	if len(targets) == 0 {
		logger.Info("no active targets", logging.String(logging.FieldEventType, "acquire_no_targets"))
		return result, nil
	}

	var failures int
	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}
		raw, err := s.source.Fetch(ctx, target.Name, s.limit)
		if err != nil {
			failures++
			logging.WarnWithContext(logger, "fetch target failed", "acquire_fetch_failed",
				logging.String("target", target.Name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "target skipped this run"),
			)
			continue
		}
		if err := s.store.MarkTargetChecked(ctx, target.Name, time.Now()); err != nil {
			logger.Debug("mark target checked failed", logging.String("target", target.Name), logging.Error(err))
		}
		for _, post := range raw {
			result.Selected++
			s.record(ctx, logger, &result, target.Name, post)
		}
	}

	result.Duration = time.Since(started)
	metrics.StageRunSeconds.WithLabelValues(StageName).Observe(result.Duration.Seconds())
	logger.Info("acquire completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("targets", len(targets)),
		logging.Int("failed_targets", failures),
		logging.Int("acquired", result.Advanced),
		logging.Int("skipped", result.Skipped),
	)
	if failures == len(targets) {
		return result, fmt.Errorf("%w: all %d targets failed to fetch", stageexec.ErrStageUnavailable, failures)
	}
	return result, nil
}

func (s *Step) record(ctx context.Context, logger *slog.Logger, result *stageexec.StageRunResult, target string, post RawItem) {
	existing, err := s.store.GetBySourceKey(ctx, post.SourceKey)
	if err == nil && existing != nil {
		result.Skipped++
		metrics.ObserveStageItem(StageName, metrics.OutcomeSkipped)
		return
	}

	item, err := s.store.CreateItem(ctx, queue.NewItem{
		SourceKey:  post.SourceKey,
		Target:     target,
		PayloadRef: post.PayloadRef,
		Metadata:   post.Metadata,
	})
	switch {
	case errors.Is(err, queue.ErrDuplicateSourceKey):
		logger.Info("source key already acquired",
			logging.String(logging.FieldEventType, "acquire_duplicate_key"),
			logging.String("source_key", post.SourceKey),
		)
		result.Skipped++
		metrics.ObserveStageItem(StageName, metrics.OutcomeSkipped)
	case err != nil:
		logging.WarnWithContext(logger, "record acquired item failed", "acquire_record_failed",
			logging.String("source_key", post.SourceKey),
			logging.Error(err),
		)
		result.Failed++
		metrics.ObserveStageItem(StageName, metrics.OutcomeFailed)
	default:
		logging.WithContext(services.WithItemID(ctx, item.ID), s.logger).Info("item acquired",
			logging.String(logging.FieldEventType, "item_acquired"),
			logging.String("source_key", item.SourceKey),
		)
		result.Advanced++
		metrics.ObserveStageItem(StageName, metrics.OutcomeAdvanced)
	}
}
