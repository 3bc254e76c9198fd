package stageexec_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelpipe/internal/notifications"
	"reelpipe/internal/queue"
	"reelpipe/internal/services"
	"reelpipe/internal/stage"
	"reelpipe/internal/stageexec"
	"reelpipe/internal/testsupport"
)

type stubHandler struct {
	ready     bool
	execute   func(context.Context, *queue.Item) error
	committed []int64
	mu        sync.Mutex
	calls     atomic.Int32
}

func (h *stubHandler) Prepare(context.Context, *queue.Item) error { return nil }

func (h *stubHandler) Execute(ctx context.Context, item *queue.Item) error {
	h.calls.Add(1)
	if h.execute == nil {
		return nil
	}
	return h.execute(ctx, item)
}

func (h *stubHandler) HealthCheck(context.Context) stage.Health {
	if !h.ready {
		return stage.Unhealthy("stub", "offline")
	}
	return stage.Healthy("stub")
}

func (h *stubHandler) AfterCommit(_ context.Context, item *queue.Item) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.committed = append(h.committed, item.ID)
}

type retriableError struct{}

func (retriableError) Error() string   { return "upload rejected" }
func (retriableError) IsRetriable() bool { return true }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func publishDefinition(handler stage.Handler) stageexec.Definition {
	return stageexec.Definition{
		Name:    "publish",
		Input:   queue.StageApproved,
		Next:    queue.StagePublished,
		Failed:  queue.StagePublishFailed,
		Handler: handler,
	}
}

func TestRunUnavailableWhenUnhealthy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.ItemAtStage(t, store, "a", queue.StageApproved)

	handler := &stubHandler{ready: false}
	exec := stageexec.New(store, stageexec.Options{})
	_, err := exec.Run(context.Background(), publishDefinition(handler), 2)
	if !errors.Is(err, stageexec.ErrStageUnavailable) {
		t.Fatalf("expected ErrStageUnavailable, got %v", err)
	}
	if handler.calls.Load() != 0 {
		t.Fatal("handler must not run when unhealthy")
	}
}

func TestRunAdvancesItemsAndRunsCommitHook(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	first := testsupport.ItemAtStage(t, store, "a", queue.StageApproved)
	second := testsupport.ItemAtStage(t, store, "b", queue.StageApproved)

	handler := &stubHandler{ready: true, execute: func(_ context.Context, item *queue.Item) error {
		item.PublishedID = "pub-" + item.SourceKey
		return nil
	}}
	exec := stageexec.New(store, stageexec.Options{})
	result, err := exec.Run(context.Background(), publishDefinition(handler), 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Selected != 2 || result.Advanced != 2 || result.Failed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	for _, id := range []int64{first.ID, second.ID} {
		got, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Stage != queue.StagePublished || got.PublishedID == "" {
			t.Fatalf("item %d not published: %+v", id, got)
		}
	}
	if len(handler.committed) != 2 {
		t.Fatalf("expected commit hook for both items, got %v", handler.committed)
	}
}

func TestRunPermanentFailureMovesToFailedState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.ItemAtStage(t, store, "a", queue.StageApproved)

	notifier := &recordingNotifier{}
	handler := &stubHandler{ready: true, execute: func(context.Context, *queue.Item) error {
		return services.Wrap(services.ErrPermanent, "publish", "upload", "account suspended", nil)
	}}
	exec := stageexec.New(store, stageexec.Options{
		Retry:    stageexec.RetryPolicy{MaxRetries: 5},
		Notifier: notifier,
	})
	result, err := exec.Run(context.Background(), publishDefinition(handler), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("expected one failure, got %+v", result)
	}
	got, _ := store.GetByID(context.Background(), item.ID)
	if got.Stage != queue.StagePublishFailed || got.Attempts != 1 || got.LastError == "" {
		t.Fatalf("unexpected item state %+v", got)
	}
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventItemFailed {
		t.Fatalf("expected failure notification, got %v", notifier.events)
	}
}

func TestRunInvariantViolationFailsImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.ItemAtStage(t, store, "a", queue.StageApproved)

	handler := &stubHandler{ready: true, execute: func(context.Context, *queue.Item) error {
		return services.Wrap(services.ErrInvariant, "publish", "load", "processed media missing fingerprint", nil)
	}}
	exec := stageexec.New(store, stageexec.Options{Retry: stageexec.RetryPolicy{MaxRetries: 3}})
	if _, err := exec.Run(context.Background(), publishDefinition(handler), 1); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := store.GetByID(context.Background(), item.ID)
	if got.Stage != queue.StagePublishFailed {
		t.Fatalf("expected publish_failed, got %s", got.Stage)
	}
}

func TestRunTransientFailureSchedulesRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.ItemAtStage(t, store, "a", queue.StageApproved)

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	handler := &stubHandler{ready: true, execute: func(context.Context, *queue.Item) error {
		return retriableError{}
	}}
	exec := stageexec.New(store, stageexec.Options{
		Retry: stageexec.NewRetryPolicy(3, time.Minute, time.Hour),
		Now:   func() time.Time { return now },
	})
	result, err := exec.Run(context.Background(), publishDefinition(handler), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Retried != 1 {
		t.Fatalf("expected one retry, got %+v", result)
	}
	got, _ := store.GetByID(context.Background(), item.ID)
	if got.Stage != queue.StageApproved || got.Attempts != 1 {
		t.Fatalf("unexpected item state %+v", got)
	}
	if got.NextAttemptAt == nil || !got.NextAttemptAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected next attempt at %v, got %v", now.Add(time.Minute), got.NextAttemptAt)
	}

	// The item is not eligible again until its backoff elapses.
	result, err = exec.Run(context.Background(), publishDefinition(handler), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Selected != 0 {
		t.Fatalf("expected no eligible items, got %+v", result)
	}
}

func TestRunExhaustsRetriesAcrossRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	var ids []int64
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		ids = append(ids, testsupport.ItemAtStage(t, store, key, queue.StageApproved).ID)
	}

	handler := &stubHandler{ready: true, execute: func(context.Context, *queue.Item) error {
		return retriableError{}
	}}
	exec := stageexec.New(store, stageexec.Options{Retry: stageexec.NewRetryPolicy(3, 0, 0)})
	for run := 1; run <= 3; run++ {
		result, err := exec.Run(context.Background(), publishDefinition(handler), 2)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if result.Selected != 5 {
			t.Fatalf("run %d selected %d items", run, result.Selected)
		}
		if run < 3 && result.Retried != 5 {
			t.Fatalf("run %d: expected 5 retries, got %+v", run, result)
		}
		if run == 3 && result.Failed != 5 {
			t.Fatalf("run 3: expected 5 failures, got %+v", result)
		}
	}

	for _, id := range ids {
		got, _ := store.GetByID(context.Background(), id)
		if got.Stage != queue.StagePublishFailed || got.Attempts != 3 {
			t.Fatalf("item %d: stage=%s attempts=%d", id, got.Stage, got.Attempts)
		}
	}
}

func TestRunSkipsConcurrentlyModifiedItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.ItemAtStage(t, store, "a", queue.StageApproved)

	handler := &stubHandler{ready: true, execute: func(ctx context.Context, current *queue.Item) error {
		other, err := store.GetByID(ctx, current.ID)
		if err != nil {
			return err
		}
		other.Stage = queue.StagePublishFailed
		return store.Update(ctx, other)
	}}
	exec := stageexec.New(store, stageexec.Options{})
	result, err := exec.Run(context.Background(), publishDefinition(handler), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Skipped != 1 || result.Advanced != 0 {
		t.Fatalf("expected conflicting item skipped, got %+v", result)
	}
	got, _ := store.GetByID(context.Background(), item.ID)
	if got.Stage != queue.StagePublishFailed {
		t.Fatalf("concurrent write lost: %s", got.Stage)
	}
	if len(handler.committed) != 0 {
		t.Fatal("commit hook must not run for skipped items")
	}
}

func TestRunHonoursItemTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.ItemAtStage(t, store, "a", queue.StageApproved)

	handler := &stubHandler{ready: true, execute: func(ctx context.Context, _ *queue.Item) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	exec := stageexec.New(store, stageexec.Options{
		ItemTimeout: 20 * time.Millisecond,
		Retry:       stageexec.NewRetryPolicy(2, 0, 0),
	})
	result, err := exec.Run(context.Background(), publishDefinition(handler), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Retried != 1 {
		t.Fatalf("expected timeout to be retried, got %+v", result)
	}
	got, _ := store.GetByID(context.Background(), item.ID)
	if got.LastError == "" || got.Attempts != 1 {
		t.Fatalf("unexpected item state %+v", got)
	}
}

func TestNewRetryPolicyBackoffDoublesAndCaps(t *testing.T) {
	policy := stageexec.NewRetryPolicy(5, time.Second, 5*time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, expected := range want {
		if got := policy.Backoff(i + 1); got != expected {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, expected)
		}
	}
	if got := stageexec.NewRetryPolicy(3, 0, 0).Backoff(2); got != 0 {
		t.Fatalf("expected zero delay, got %v", got)
	}
}

func TestRunClaimHidesItemFromOverlappingRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.ItemAtStage(t, store, "a", queue.StageApproved)

	started := make(chan struct{})
	proceed := make(chan struct{})
	handler := &stubHandler{ready: true, execute: func(context.Context, *queue.Item) error {
		close(started)
		<-proceed
		return nil
	}}
	exec := stageexec.New(store, stageexec.Options{})

	first := make(chan stageexec.StageRunResult, 1)
	go func() {
		result, _ := exec.Run(context.Background(), publishDefinition(handler), 1)
		first <- result
	}()
	<-started

	second, err := exec.Run(context.Background(), publishDefinition(handler), 1)
	if err != nil {
		t.Fatalf("overlapping Run: %v", err)
	}
	if second.Selected != 0 {
		t.Fatalf("claimed item must not be selected again, got %+v", second)
	}
	close(proceed)

	if result := <-first; result.Advanced != 1 {
		t.Fatalf("expected first run to advance the item, got %+v", result)
	}
	if calls := handler.calls.Load(); calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
	got, _ := store.GetByID(context.Background(), item.ID)
	if got.Stage != queue.StagePublished || got.NextAttemptAt != nil {
		t.Fatalf("unexpected item state %+v", got)
	}
}

// barrierStore holds every ItemsForStage caller until all have selected, so
// overlapping runs race on the same row version.
type barrierStore struct {
	*queue.Store
	selected sync.WaitGroup
}

func (s *barrierStore) ItemsForStage(ctx context.Context, stage queue.Stage, now time.Time) ([]*queue.Item, error) {
	items, err := s.Store.ItemsForStage(ctx, stage, now)
	s.selected.Done()
	s.selected.Wait()
	return items, err
}

func TestRunOverlappingSelectionsCallHandlerOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.ItemAtStage(t, store, "a", queue.StageApproved)

	shared := &barrierStore{Store: store}
	shared.selected.Add(2)
	handler := &stubHandler{ready: true, execute: func(context.Context, *queue.Item) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}}
	exec := stageexec.New(shared, stageexec.Options{})

	var (
		wg      sync.WaitGroup
		results [2]stageexec.StageRunResult
	)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = exec.Run(context.Background(), publishDefinition(handler), 1)
		}()
	}
	wg.Wait()

	if results[0].Selected != 1 || results[1].Selected != 1 {
		t.Fatalf("expected both runs to select the item, got %+v", results)
	}
	if advanced := results[0].Advanced + results[1].Advanced; advanced != 1 {
		t.Fatalf("expected exactly one advance, got %+v", results)
	}
	if skipped := results[0].Skipped + results[1].Skipped; skipped != 1 {
		t.Fatalf("expected the losing run to skip, got %+v", results)
	}
	if calls := handler.calls.Load(); calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
	if len(handler.committed) != 1 || handler.committed[0] != item.ID {
		t.Fatalf("expected one commit hook, got %v", handler.committed)
	}
}

func TestRunStopsWaitingForHandlerIgnoringDeadline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.ItemAtStage(t, store, "a", queue.StageApproved)

	stuck := make(chan struct{})
	t.Cleanup(func() { close(stuck) })
	handler := &stubHandler{ready: true, execute: func(context.Context, *queue.Item) error {
		<-stuck
		return nil
	}}
	exec := stageexec.New(store, stageexec.Options{
		ItemTimeout: 20 * time.Millisecond,
		Retry:       stageexec.NewRetryPolicy(3, 0, 0),
	})

	started := time.Now()
	result, err := exec.Run(context.Background(), publishDefinition(handler), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("Run waited %v for a stuck handler", elapsed)
	}
	if result.Retried != 1 {
		t.Fatalf("expected the stuck item to be retried, got %+v", result)
	}
	got, _ := store.GetByID(context.Background(), item.ID)
	if got.Stage != queue.StageApproved || got.Attempts != 1 || got.LastError == "" {
		t.Fatalf("unexpected item state %+v", got)
	}
	if got.NextAttemptAt == nil || !got.NextAttemptAt.After(time.Now()) {
		t.Fatalf("expected the item held back while the abandoned call may run, got %v", got.NextAttemptAt)
	}
}

func TestRunDeferredItemKeepsAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.ItemAtStage(t, store, "a", queue.StageApproved)

	handler := &stubHandler{ready: true, execute: func(context.Context, *queue.Item) error {
		return fmt.Errorf("%w: breaker open", services.ErrDeferred)
	}}
	exec := stageexec.New(store, stageexec.Options{Retry: stageexec.NewRetryPolicy(1, 0, 0)})
	for run := 0; run < 3; run++ {
		result, err := exec.Run(context.Background(), publishDefinition(handler), 1)
		if err != nil {
			t.Fatalf("run %d: %v", run+1, err)
		}
		if result.Skipped != 1 || result.Retried != 0 || result.Failed != 0 {
			t.Fatalf("run %d: expected deferral, got %+v", run+1, result)
		}
	}
	got, _ := store.GetByID(context.Background(), item.ID)
	if got.Stage != queue.StageApproved || got.Attempts != 0 || got.NextAttemptAt != nil {
		t.Fatalf("deferral must not consume retries, got %+v", got)
	}
}
