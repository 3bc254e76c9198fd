package workflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"reelpipe/internal/acquisition"
	"reelpipe/internal/approval"
	"reelpipe/internal/config"
	"reelpipe/internal/dedupe"
	"reelpipe/internal/fingerprint"
	"reelpipe/internal/logging"
	"reelpipe/internal/notifications"
	"reelpipe/internal/preparation"
	"reelpipe/internal/publishing"
	"reelpipe/internal/queue"
	"reelpipe/internal/stageexec"
	"reelpipe/internal/transform"
)

// Manager runs the ordered pipeline steps on demand and on a schedule.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service
	approval *approval.Gate
	steps    []pipelineStep

	mu         sync.RWMutex
	scheduler  *cron.Cron
	baseCtx    context.Context
	cancel     context.CancelFunc
	runs       sync.WaitGroup
	active     int
	lastReport *PipelineRunReport
	lastErr    error
}

// NewManager wires the pipeline stages around the supplied collaborators.
func NewManager(cfg *config.Config, store *queue.Store, collab Collaborators, logger *slog.Logger) *Manager {
	notifier := collab.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}

	approvalGate := approval.NewGate(store)
	index := fingerprint.NewIndex(store, cfg.Pipeline.FingerprintThreshold)
	executor := stageexec.New(store, stageexec.Options{
		Logger:      logger,
		Notifier:    notifier,
		ItemTimeout: cfg.ItemTimeout(),
		Retry:       stageexec.NewRetryPolicy(cfg.Pipeline.MaxRetries, cfg.RetryBackoff(), cfg.RetryBackoffMax()),
	})
	concurrency := cfg.Pipeline.MaxConcurrency

	acquire := acquisition.NewStep(store, collab.Source, cfg.Pipeline.PostsPerTarget, logger)
	defs := []struct {
		def         stageexec.Definition
		concurrency int
	}{
		{
			def: stageexec.Definition{
				Name:    transform.StageName,
				Input:   queue.StageAcquired,
				Next:    queue.StageTransformed,
				Failed:  queue.StageTransformFailed,
				Handler: transform.NewStage(collab.Engine, collab.Requirements, logger),
			},
			concurrency: concurrency,
		},
		{
			// Serialised so two near-identical items in one batch cannot
			// both be judged unique.
			def: stageexec.Definition{
				Name:    dedupe.StageName,
				Input:   queue.StageTransformed,
				Next:    queue.StageUnique,
				Failed:  queue.StageFailed,
				Handler: dedupe.NewStage(dedupe.NewGate(index), logger),
			},
			concurrency: 1,
		},
		{
			def: stageexec.Definition{
				Name:    preparation.StageName,
				Input:   queue.StageUnique,
				Next:    queue.StagePendingApproval,
				Failed:  queue.StageFailed,
				Handler: preparation.NewStage(preparation.NewBuilder(cfg.Publishing.ChannelTitle, preparation.ScheduleDescription(cfg)), approvalGate, notifier, logger),
			},
			concurrency: concurrency,
		},
		{
			def: stageexec.Definition{
				Name:    publishing.StageName,
				Input:   queue.StageApproved,
				Next:    queue.StagePublished,
				Failed:  queue.StagePublishFailed,
				Handler: publishing.NewStage(collab.Publisher, approvalGate, notifier, logger),
			},
			concurrency: concurrency,
		},
	}

	steps := []pipelineStep{{name: acquisition.StageName, run: acquire.Run}}
	for _, d := range defs {
		def, limit := d.def, d.concurrency
		steps = append(steps, pipelineStep{
			name:    def.Name,
			handler: def.Handler,
			run: func(ctx context.Context) (stageexec.StageRunResult, error) {
				return executor.Run(ctx, def, limit)
			},
		})
	}

	return &Manager{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		notifier: notifier,
		approval: approvalGate,
		steps:    steps,
		baseCtx:  context.Background(),
	}
}

// Approval exposes the approval gate so the API and CLI decide through the
// same path as the pipeline.
func (m *Manager) Approval() *approval.Gate {
	return m.approval
}

// StageNames lists the pipeline steps in execution order.
func (m *Manager) StageNames() []string {
	names := make([]string, 0, len(m.steps))
	for _, s := range m.steps {
		names = append(names, s.name)
	}
	return names
}
