package preparation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"reelpipe/internal/config"
	"reelpipe/internal/logging"
	"reelpipe/internal/notifications"
	"reelpipe/internal/queue"
	"reelpipe/internal/services"
	"reelpipe/internal/stage"
)

// StageName labels the prepare-publication stage.
const StageName = "prepare"

// ApprovalRequester opens approval requests for prepared items.
type ApprovalRequester interface {
	RequestApproval(ctx context.Context, item *queue.Item) (queue.ApprovalRequest, error)
}

// Stage builds publish metadata for unique items and hands them to the
// approval gate.
type Stage struct {
	builder  *Builder
	approval ApprovalRequester
	notifier notifications.Service
	logger   *slog.Logger
}

// NewStage constructs the prepare-publication handler.
func NewStage(builder *Builder, approval ApprovalRequester, notifier notifications.Service, logger *slog.Logger) *Stage {
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	return &Stage{
		builder:  builder,
		approval: approval,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, StageName),
	}
}

// Prepare validates that acquisition recorded who the content came from.
func (s *Stage) Prepare(_ context.Context, item *queue.Item) error {
	if strings.TrimSpace(item.Target) == "" {
		return services.Wrap(services.ErrValidation, "prepare", "validate item",
			fmt.Sprintf("Item %d has no creator target", item.ID), nil)
	}
	return nil
}

// Execute fills title, description and tags, records the approval request
// and moves the item to pending_approval.
func (s *Stage) Execute(ctx context.Context, item *queue.Item) error {
	meta := item.Metadata()
	src := Source{Creator: item.Target, Caption: meta.Caption, SourceURL: meta.SourceURL}
	meta.Title = s.builder.Title(src)
	meta.Description = s.builder.Description(src)
	meta.Tags = s.builder.Tags(src)
	item.SetMetadata(meta)

	if _, err := s.approval.RequestApproval(ctx, item); err != nil {
		return err
	}
	item.Stage = queue.StagePendingApproval
	logging.WithContext(ctx, s.logger).Info("publish metadata prepared",
		logging.String(logging.FieldEventType, "prepare_complete"),
		logging.String("title", meta.Title),
		logging.Int("tag_count", len(meta.Tags)),
	)
	return nil
}

// AfterCommit sends the approval preview once the item is durably pending.
// Delivery failures are logged and never undo the transition.
func (s *Stage) AfterCommit(ctx context.Context, item *queue.Item) {
	meta := item.Metadata()
	payload := notifications.Payload{
		"itemID":      item.ID,
		"title":       meta.Title,
		"description": meta.Description,
		"tags":        meta.Tags,
		"target":      item.Target,
		"sourceURL":   meta.SourceURL,
		"fingerprint": item.Fingerprint,
	}
	if err := s.notifier.Publish(ctx, notifications.EventApprovalRequested, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "approval preview not delivered", "approval_notify_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ntfy/telegram settings; decide via reelpipe approve"),
			logging.String(logging.FieldImpact, "item waits for approval without a preview"),
		)
	}
}

// HealthCheck reports the stage as ready.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(StageName)
}

// ScheduleDescription renders configured upload times as "8AM, 12PM, 4PM
// (Asia/Karachi)" for publish descriptions. Unparseable entries are skipped.
func ScheduleDescription(cfg *config.Config) string {
	if cfg == nil || !cfg.Schedule.Enabled || len(cfg.Schedule.Times) == 0 {
		return ""
	}
	var labels []string
	for _, value := range cfg.Schedule.Times {
		hour, minute, err := config.ParseClock(value)
		if err != nil {
			continue
		}
		suffix := "AM"
		if hour >= 12 {
			suffix = "PM"
		}
		h := hour % 12
		if h == 0 {
			h = 12
		}
		if minute == 0 {
			labels = append(labels, fmt.Sprintf("%d%s", h, suffix))
		} else {
			labels = append(labels, fmt.Sprintf("%d:%02d%s", h, minute, suffix))
		}
	}
	if len(labels) == 0 {
		return ""
	}
	return fmt.Sprintf("%s (%s)", strings.Join(labels, ", "), cfg.Schedule.Timezone)
}
