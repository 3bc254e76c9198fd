package publishing

import (
	"context"
	"fmt"
	"log/slog"

	"reelpipe/internal/logging"
	"reelpipe/internal/notifications"
	"reelpipe/internal/queue"
	"reelpipe/internal/services"
	"reelpipe/internal/stage"
)

// StageName labels the publish stage.
const StageName = "publish"

// ApprovalLookup loads the approval request recorded for an item.
type ApprovalLookup interface {
	Get(ctx context.Context, itemID int64) (*queue.ApprovalRequest, error)
}

type healthChecker interface {
	Healthy() error
}

// Stage publishes approved items.
type Stage struct {
	publisher Publisher
	approvals ApprovalLookup
	notifier  notifications.Service
	logger    *slog.Logger
}

// NewStage wires the publish stage.
func NewStage(publisher Publisher, approvals ApprovalLookup, notifier notifications.Service, logger *slog.Logger) *Stage {
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	return &Stage{
		publisher: publisher,
		approvals: approvals,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, StageName),
	}
}

// Prepare refuses items without a recorded approval and checks the processed
// media is still present.
func (s *Stage) Prepare(ctx context.Context, item *queue.Item) error {
	if item.Stage != queue.StageApproved {
		return services.Wrap(services.ErrInvariant, StageName, "approval", fmt.Sprintf("item is %s, not approved", item.Stage), nil)
	}
	if s.approvals != nil {
		req, err := s.approvals.Get(ctx, item.ID)
		if err != nil {
			return services.Wrap(services.ErrTransient, StageName, "approval", "load approval request", err)
		}
		if req == nil || req.Decision != queue.DecisionApproved {
			return services.Wrap(services.ErrInvariant, StageName, "approval", "no approved decision recorded", nil)
		}
	}
	return stage.RequireFile(StageName, "processed media", item.ProcessedRef)
}

// Execute publishes the processed media and records the published id.
func (s *Stage) Execute(ctx context.Context, item *queue.Item) error {
	id, err := s.publisher.Publish(ctx, item.ProcessedRef, item.Metadata())
	if err != nil {
		return err
	}
	item.PublishedID = id
	item.Stage = queue.StagePublished
	logging.WithContext(ctx, s.logger).Info("item published",
		logging.String(logging.FieldEventType, "publish_complete"),
		logging.String("published_id", id),
	)
	return nil
}

// AfterCommit announces the publication.
func (s *Stage) AfterCommit(ctx context.Context, item *queue.Item) {
	payload := notifications.Payload{
		"itemID":      item.ID,
		"title":       item.Metadata().Title,
		"publishedID": item.PublishedID,
	}
	if err := s.notifier.Publish(ctx, notifications.EventItemPublished, payload); err != nil {
		logging.WithContext(ctx, s.logger).Debug("publish notification not delivered", logging.Error(err))
	}
}

// HealthCheck is unready while the publisher reports itself unhealthy, for
// example with an open circuit breaker.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.publisher == nil {
		return stage.Unhealthy(StageName, "publisher not configured")
	}
	if checker, ok := s.publisher.(healthChecker); ok {
		if err := checker.Healthy(); err != nil {
			return stage.Unhealthy(StageName, err.Error())
		}
	}
	return stage.Healthy(StageName)
}
