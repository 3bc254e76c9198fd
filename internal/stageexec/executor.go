package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"reelpipe/internal/logging"
	"reelpipe/internal/metrics"
	"reelpipe/internal/notifications"
	"reelpipe/internal/queue"
	"reelpipe/internal/services"
	"reelpipe/internal/stage"
)

// ErrStageUnavailable reports that a stage could not start: its collaborator
// failed the health check or eligible items could not be loaded.
var ErrStageUnavailable = fmt.Errorf("%w: stage unavailable", services.ErrUnavailable)

const (
	defaultConcurrency = 3
	// defaultLease bounds a claim when no item timeout is configured.
	defaultLease = 30 * time.Minute
	leaseGrace   = time.Minute
	abandonGrace = 250 * time.Millisecond
)

// errAbandoned marks a handler call the executor stopped waiting for.
var errAbandoned = errors.New("handler ignored cancellation")

// Store is the persistence the executor needs.
type Store interface {
	ItemsForStage(ctx context.Context, stage queue.Stage, now time.Time) ([]*queue.Item, error)
	Update(ctx context.Context, item *queue.Item) error
}

// Definition describes one pipeline stage.
type Definition struct {
	Name    string
	Input   queue.Stage
	Next    queue.Stage
	Failed  queue.Stage
	Handler stage.Handler
	// Retry overrides the executor's policy when Backoff is set.
	Retry RetryPolicy
}

// StageRunResult summarises one stage run.
type StageRunResult struct {
	Stage    string        `json:"stage"`
	Selected int           `json:"selected"`
	Advanced int           `json:"advanced"`
	Failed   int           `json:"failed"`
	Retried  int           `json:"retried"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Options configures an Executor.
type Options struct {
	Logger      *slog.Logger
	Notifier    notifications.Service
	ItemTimeout time.Duration
	Retry       RetryPolicy
	Now         func() time.Time
}

// Executor advances eligible items through a stage with bounded concurrency.
type Executor struct {
	store       Store
	logger      *slog.Logger
	notifier    notifications.Service
	itemTimeout time.Duration
	retry       RetryPolicy
	now         func() time.Time
}

// New constructs an executor.
func New(store Store, opts Options) *Executor {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		store:       store,
		logger:      logging.NewComponentLogger(opts.Logger, "stageexec"),
		notifier:    notifier,
		itemTimeout: opts.ItemTimeout,
		retry:       opts.Retry,
		now:         now,
	}
}

type outcome int

const (
	outcomeAdvanced outcome = iota
	outcomeFailed
	outcomeRetried
	outcomeSkipped
)

func (o outcome) label() string {
	switch o {
	case outcomeAdvanced:
		return metrics.OutcomeAdvanced
	case outcomeFailed:
		return metrics.OutcomeFailed
	case outcomeRetried:
		return metrics.OutcomeRetried
	default:
		return metrics.OutcomeSkipped
	}
}

// Run processes every eligible item in the definition's input stage. Per-item
// failures are recorded in the result; an error is returned only when the
// stage cannot start.
func (e *Executor) Run(ctx context.Context, def Definition, maxConcurrency int) (StageRunResult, error) {
	started := time.Now()
	result := StageRunResult{Stage: def.Name}
	if def.Handler == nil {
		return result, fmt.Errorf("%w: %s has no handler", ErrStageUnavailable, def.Name)
	}
	if maxConcurrency <= 0 {
		maxConcurrency = defaultConcurrency
	}

	stageCtx := logging.WithStage(ctx, def.Name)
	logger := logging.WithContext(stageCtx, e.logger)

	health := def.Handler.HealthCheck(stageCtx)
	if !health.Ready {
		logging.WarnWithContext(logger, "stage unavailable", "stage_unavailable",
			logging.String("detail", health.Detail),
			logging.String(logging.FieldErrorHint, "check the stage collaborator with reelpipe check"),
			logging.String(logging.FieldImpact, "remaining stages in this run are skipped"),
		)
		return result, fmt.Errorf("%w: %s: %s", ErrStageUnavailable, def.Name, health.Detail)
	}

	items, err := e.store.ItemsForStage(stageCtx, def.Input, e.now())
	if err != nil {
		return result, fmt.Errorf("%w: %s: select items: %w", ErrStageUnavailable, def.Name, err)
	}
	result.Selected = len(items)
	if len(items) == 0 {
		logger.Debug("no eligible items", logging.String(logging.FieldEventType, "stage_idle"))
		return result, nil
	}

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("selected", len(items)),
		logging.Int("max_concurrency", maxConcurrency),
	)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(maxConcurrency)
	record := func(o outcome) {
		mu.Lock()
		defer mu.Unlock()
		switch o {
		case outcomeAdvanced:
			result.Advanced++
		case outcomeFailed:
			result.Failed++
		case outcomeRetried:
			result.Retried++
		default:
			result.Skipped++
		}
		metrics.ObserveStageItem(def.Name, o.label())
	}

	for i, item := range items {
		if stageCtx.Err() != nil {
			for range items[i:] {
				record(outcomeSkipped)
			}
			break
		}
		g.Go(func() error {
			record(e.process(stageCtx, def, item))
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(started)
	metrics.StageRunSeconds.WithLabelValues(def.Name).Observe(result.Duration.Seconds())
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("selected", result.Selected),
		logging.Int("advanced", result.Advanced),
		logging.Int("failed", result.Failed),
		logging.Int("retried", result.Retried),
		logging.Int("skipped", result.Skipped),
		logging.Duration("duration", result.Duration),
	)
	return result, nil
}

func (e *Executor) process(ctx context.Context, def Definition, item *queue.Item) outcome {
	itemCtx := services.WithItemID(ctx, item.ID)
	logger := logging.WithContext(itemCtx, e.logger)

	if err := e.claim(itemCtx, item); err != nil {
		if errors.Is(err, queue.ErrConcurrencyConflict) {
			logger.Debug("item claimed by another run; skipping", logging.String(logging.FieldEventType, "item_conflict"))
		} else {
			logging.ErrorWithContext(logger, "claim item failed", "item_claim_failed", logging.Error(err))
		}
		return outcomeSkipped
	}
	snapshot := *item

	work, err := e.invoke(itemCtx, def.Handler, item)
	*item = work

	if ctx.Err() != nil {
		logger.Debug("item abandoned on cancellation", logging.String(logging.FieldEventType, "item_abandoned"))
		e.release(itemCtx, logger, item)
		return outcomeSkipped
	}
	if errors.Is(err, services.ErrDeferred) {
		logger.Info("item deferred",
			logging.String(logging.FieldEventType, "item_deferred"),
			logging.Error(err),
		)
		e.release(itemCtx, logger, item)
		return outcomeSkipped
	}
	if err != nil {
		return e.fail(itemCtx, logger, def, item, err)
	}

	if item.Stage == snapshot.Stage {
		item.Stage = def.Next
	}
	item.Attempts = 0
	item.LastError = ""
	item.NextAttemptAt = nil
	if err := e.store.Update(itemCtx, item); err != nil {
		if errors.Is(err, queue.ErrConcurrencyConflict) {
			logger.Debug("item changed concurrently; skipping", logging.String(logging.FieldEventType, "item_conflict"))
			return outcomeSkipped
		}
		if errors.Is(err, services.ErrInvariant) {
			*item = snapshot
			return e.fail(itemCtx, logger, def, item, err)
		}
		logging.ErrorWithContext(logger, "persist stage result failed", "item_persist_failed", logging.Error(err))
		return outcomeSkipped
	}

	logger.Info("item advanced",
		logging.String(logging.FieldEventType, "item_advanced"),
		logging.String("next_stage", string(item.Stage)),
	)
	if hook, ok := def.Handler.(stage.AfterCommitter); ok {
		hook.AfterCommit(itemCtx, item)
	}
	return outcomeAdvanced
}

// claim leases the item to this run with a version-checked write. An
// overlapping run holding the same row version loses the write and skips the
// item before its handler runs, and ItemsForStage hides the item from later
// selections until the lease expires.
func (e *Executor) claim(ctx context.Context, item *queue.Item) error {
	until := e.now().Add(e.lease())
	item.NextAttemptAt = &until
	return e.store.Update(ctx, item)
}

// release gives up a claim without touching attempts.
func (e *Executor) release(ctx context.Context, logger *slog.Logger, item *queue.Item) {
	item.NextAttemptAt = nil
	if err := e.store.Update(context.WithoutCancel(ctx), item); err != nil && !errors.Is(err, queue.ErrConcurrencyConflict) {
		logging.WarnWithContext(logger, "release item claim failed", "item_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "item waits for its claim to expire"),
		)
	}
}

func (e *Executor) lease() time.Duration {
	if e.itemTimeout > 0 {
		return e.itemTimeout + leaseGrace
	}
	return defaultLease
}

// invoke runs the handler against a copy of item and stops waiting once the
// item deadline has passed and the handler has had abandonGrace to return.
// An abandoned call keeps running in the background with its own copy.
func (e *Executor) invoke(ctx context.Context, handler stage.Handler, item *queue.Item) (queue.Item, error) {
	workCtx, cancel := e.itemContext(ctx)
	defer cancel()

	work := *item
	done := make(chan error, 1)
	go func() {
		err := handler.Prepare(workCtx, &work)
		if err == nil {
			err = handler.Execute(workCtx, &work)
		}
		done <- err
	}()

	select {
	case err := <-done:
		return work, err
	case <-workCtx.Done():
	}
	timer := time.NewTimer(abandonGrace)
	defer timer.Stop()
	select {
	case err := <-done:
		return work, err
	case <-timer.C:
		return *item, fmt.Errorf("%w: %w: %w", errAbandoned, services.ErrTimeout, workCtx.Err())
	}
}

func (e *Executor) fail(ctx context.Context, logger *slog.Logger, def Definition, item *queue.Item, stageErr error) outcome {
	policy := e.retry
	if def.Retry.Backoff != nil || def.Retry.MaxRetries > 0 {
		policy = def.Retry
	}

	item.SetFailed(services.Message(stageErr))
	item.NextAttemptAt = nil
	kind := services.Classify(stageErr)
	result := outcomeFailed

	switch {
	case kind == services.KindInvariant:
		item.Stage = def.Failed
		logging.ErrorWithContext(logger, "invariant violation", "item_invariant_violation",
			logging.Error(stageErr),
			logging.String(logging.FieldErrorHint, "inspect the item with reelpipe items show"),
		)
	case kind == services.KindPermanent:
		item.Stage = def.Failed
		logger.Error("item failed permanently",
			logging.String(logging.FieldEventType, "item_failed"),
			logging.Int("attempts", item.Attempts),
			logging.Error(stageErr),
		)
	case item.Attempts < policy.MaxRetries:
		result = outcomeRetried
		delay := policy.delay(item.Attempts)
		if errors.Is(stageErr, errAbandoned) {
			// The abandoned call may still be running; keep the item
			// out of reach until a fresh claim would have expired.
			delay = max(delay, e.lease())
		}
		if delay > 0 {
			next := e.now().Add(delay)
			item.NextAttemptAt = &next
		}
		logger.Warn("item will be retried",
			logging.String(logging.FieldEventType, "item_retry_scheduled"),
			logging.Int("attempts", item.Attempts),
			logging.Int("max_retries", policy.MaxRetries),
			logging.Error(stageErr),
		)
	default:
		item.Stage = def.Failed
		logger.Error("item exhausted retries",
			logging.String(logging.FieldEventType, "item_failed"),
			logging.Int("attempts", item.Attempts),
			logging.Error(stageErr),
		)
	}

	if err := e.store.Update(ctx, item); err != nil {
		if errors.Is(err, queue.ErrConcurrencyConflict) {
			logger.Debug("item changed concurrently; skipping", logging.String(logging.FieldEventType, "item_conflict"))
		} else {
			logging.ErrorWithContext(logger, "persist stage failure failed", "item_persist_failed", logging.Error(err))
		}
		return outcomeSkipped
	}

	if result == outcomeFailed {
		payload := notifications.Payload{
			"itemID": item.ID,
			"stage":  def.Name,
			"error":  item.LastError,
		}
		if err := e.notifier.Publish(ctx, notifications.EventItemFailed, payload); err != nil {
			logger.Debug("failure notification not delivered", logging.Error(err))
		}
	}
	return result
}
