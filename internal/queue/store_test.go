package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"reelpipe/internal/queue"
	"reelpipe/internal/services"
	"reelpipe/internal/testsupport"
)

func TestCreateItemRejectsDuplicateSourceKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "creator:post-1")
	if item.ID == 0 || item.Stage != queue.StageAcquired || item.Version != 1 {
		t.Fatalf("unexpected new item: %#v", item)
	}
	if got := item.Metadata().Caption; got != "test caption for creator:post-1" {
		t.Fatalf("expected caption round trip, got %q", got)
	}

	_, err := store.CreateItem(ctx, queue.NewItem{SourceKey: "creator:post-1", Target: "creator"})
	if !errors.Is(err, queue.ErrDuplicateSourceKey) {
		t.Fatalf("expected ErrDuplicateSourceKey, got %v", err)
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item per source key, got %d", len(items))
	}

	fetched, err := store.GetBySourceKey(ctx, "creator:post-1")
	if err != nil || fetched == nil || fetched.ID != item.ID {
		t.Fatalf("GetBySourceKey = %#v, %v", fetched, err)
	}
	missing, err := store.GetByID(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing item, got %#v, %v", missing, err)
	}
}

func TestUpdateUsesOptimisticConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "creator:post-1")
	stale, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	item.Fingerprint = "00000000000000ff"
	item.Advance(queue.StageTransformed)
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if item.Version != 2 {
		t.Fatalf("expected version 2 after update, got %d", item.Version)
	}

	stale.SetFailed("racing writer")
	if err := store.Update(ctx, stale); !errors.Is(err, queue.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}

	stored, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Stage != queue.StageTransformed || stored.Attempts != 0 || stored.Version != 2 {
		t.Fatalf("stale write leaked into store: %#v", stored)
	}
}

func TestUpdateRejectsBackwardTransition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.ItemAtStage(t, store, "creator:post-1", queue.StageUnique)
	item.Stage = queue.StageAcquired
	err := store.Update(ctx, item)
	if !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if services.Classify(err) != services.KindInvariant {
		t.Fatalf("expected invariant classification, got %s", services.Classify(err))
	}

	item.Stage = queue.StagePublished
	if err := store.Update(ctx, item); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected skip-ahead to be rejected, got %v", err)
	}
}

func TestUpdateRejectsFingerprintChange(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.ItemAtStage(t, store, "creator:post-1", queue.StageTransformed)
	item.Fingerprint = "ffffffffffffffff"
	err := store.Update(ctx, item)
	if !errors.Is(err, queue.ErrFingerprintImmutable) || !errors.Is(err, services.ErrInvariant) {
		t.Fatalf("expected fingerprint invariant violation, got %v", err)
	}
}

func TestItemsForStageHonoursRetryGate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ready := testsupport.NewItem(t, store, "creator:ready")
	delayed := testsupport.NewItem(t, store, "creator:delayed")
	testsupport.ItemAtStage(t, store, "creator:elsewhere", queue.StageTransformed)

	later := time.Now().Add(time.Hour)
	delayed.SetFailed("try again")
	delayed.NextAttemptAt = &later
	if err := store.Update(ctx, delayed); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	items, err := store.ItemsForStage(ctx, queue.StageAcquired, time.Now())
	if err != nil {
		t.Fatalf("ItemsForStage failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != ready.ID {
		t.Fatalf("expected only the ready item, got %#v", items)
	}

	items, err = store.ItemsForStage(ctx, queue.StageAcquired, later.Add(time.Second))
	if err != nil {
		t.Fatalf("ItemsForStage failed: %v", err)
	}
	if len(items) != 2 || items[0].ID != ready.ID || items[1].ID != delayed.ID {
		t.Fatalf("expected both items in id order once due, got %#v", items)
	}
	if items[1].Attempts != 1 || items[1].LastError != "try again" {
		t.Fatalf("expected retry bookkeeping persisted, got %#v", items[1])
	}
}

func TestInsertFingerprint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewItem(t, store, "creator:one")
	second := testsupport.NewItem(t, store, "creator:two")

	if err := store.InsertFingerprint(ctx, "00000000000000ff", first.ID); err != nil {
		t.Fatalf("InsertFingerprint failed: %v", err)
	}
	if err := store.InsertFingerprint(ctx, "00000000000000FF", first.ID); err != nil {
		t.Fatalf("re-insert of same pair should be a no-op, got %v", err)
	}
	if err := store.InsertFingerprint(ctx, "00000000000000ff", second.ID); !errors.Is(err, queue.ErrFingerprintConflict) {
		t.Fatalf("expected ErrFingerprintConflict, got %v", err)
	}
	if err := store.InsertFingerprint(ctx, "0000000000000f00", first.ID); !errors.Is(err, queue.ErrFingerprintImmutable) {
		t.Fatalf("expected ErrFingerprintImmutable, got %v", err)
	}

	records, err := store.ListFingerprints(ctx)
	if err != nil {
		t.Fatalf("ListFingerprints failed: %v", err)
	}
	if len(records) != 1 || records[0].ItemID != first.ID {
		t.Fatalf("unexpected index contents: %#v", records)
	}
	fp, err := store.FingerprintForItem(ctx, second.ID)
	if err != nil || fp != "" {
		t.Fatalf("expected no fingerprint for second item, got %q, %v", fp, err)
	}
}

func TestCreateApprovalRequestIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.ItemAtStage(t, store, "creator:post-1", queue.StageUnique)
	first, err := store.CreateApprovalRequest(ctx, item.ID)
	if err != nil {
		t.Fatalf("CreateApprovalRequest failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := store.CreateApprovalRequest(ctx, item.ID)
	if err != nil {
		t.Fatalf("second CreateApprovalRequest failed: %v", err)
	}
	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Fatalf("expected same created_at, got %v and %v", first.CreatedAt, second.CreatedAt)
	}
	if second.Decision != queue.DecisionPending {
		t.Fatalf("expected pending decision, got %s", second.Decision)
	}
}

func TestDecideApprovalIsOneShot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.ItemAtStage(t, store, "creator:post-1", queue.StagePendingApproval)

	decided, err := store.DecideApproval(ctx, item.ID, queue.DecisionApproved, "alice")
	if err != nil {
		t.Fatalf("DecideApproval failed: %v", err)
	}
	if decided.Decision != queue.DecisionApproved || decided.DecidedBy != "alice" || decided.DecidedAt == nil {
		t.Fatalf("unexpected decision: %#v", decided)
	}

	_, err = store.DecideApproval(ctx, item.ID, queue.DecisionRejected, "bob")
	if !errors.Is(err, queue.ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}

	stored, err := store.GetApprovalRequest(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetApprovalRequest failed: %v", err)
	}
	if stored.Decision != queue.DecisionApproved || stored.DecidedBy != "alice" {
		t.Fatalf("first decision should stick, got %#v", stored)
	}
	updated, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Stage != queue.StageApproved || updated.Version != item.Version+1 {
		t.Fatalf("expected approved item with bumped version, got %#v", updated)
	}
}

func TestDecideApprovalErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.DecideApproval(ctx, 42, queue.DecisionApproved, "alice"); !errors.Is(err, queue.ErrApprovalNotFound) {
		t.Fatalf("expected ErrApprovalNotFound, got %v", err)
	}

	// An approval row exists but the item never reached pending_approval.
	item := testsupport.ItemAtStage(t, store, "creator:post-1", queue.StageUnique)
	if _, err := store.CreateApprovalRequest(ctx, item.ID); err != nil {
		t.Fatalf("CreateApprovalRequest failed: %v", err)
	}
	if _, err := store.DecideApproval(ctx, item.ID, queue.DecisionApproved, "alice"); !errors.Is(err, queue.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
	req, err := store.GetApprovalRequest(ctx, item.ID)
	if err != nil || req.Decision != queue.DecisionPending {
		t.Fatalf("failed decision must roll back, got %#v, %v", req, err)
	}

	if _, err := store.DecideApproval(ctx, item.ID, queue.Decision("maybe"), "alice"); !errors.Is(err, queue.ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision, got %v", err)
	}
	if _, err := store.DecideApproval(ctx, item.ID, queue.DecisionRejected, "  "); err == nil {
		t.Fatal("expected error for blank decider")
	}
}

func TestTargets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.AddTarget(ctx, "@zeta"); err != nil {
		t.Fatalf("AddTarget failed: %v", err)
	}
	alpha, err := store.AddTarget(ctx, "alpha")
	if err != nil {
		t.Fatalf("AddTarget failed: %v", err)
	}
	if alpha.Name != "alpha" || !alpha.Active {
		t.Fatalf("unexpected target: %#v", alpha)
	}

	removed, err := store.DeactivateTarget(ctx, "zeta")
	if err != nil || !removed {
		t.Fatalf("DeactivateTarget = %v, %v", removed, err)
	}
	if removed, _ := store.DeactivateTarget(ctx, "missing"); removed {
		t.Fatal("expected unknown target to report not removed")
	}

	active, err := store.ListTargets(ctx, true)
	if err != nil {
		t.Fatalf("ListTargets failed: %v", err)
	}
	if len(active) != 1 || active[0].Name != "alpha" {
		t.Fatalf("unexpected active targets: %#v", active)
	}

	if _, err := store.AddTarget(ctx, "zeta"); err != nil {
		t.Fatalf("re-adding target failed: %v", err)
	}
	all, err := store.ListTargets(ctx, true)
	if err != nil {
		t.Fatalf("ListTargets failed: %v", err)
	}
	if len(all) != 2 || all[0].Name != "alpha" || all[1].Name != "zeta" {
		t.Fatalf("expected reactivated target in name order, got %#v", all)
	}

	checked := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.MarkTargetChecked(ctx, "alpha", checked); err != nil {
		t.Fatalf("MarkTargetChecked failed: %v", err)
	}
	got, err := store.GetTarget(ctx, "alpha")
	if err != nil || got == nil || got.LastCheckedAt == nil || !got.LastCheckedAt.Equal(checked) {
		t.Fatalf("unexpected last_checked_at: %#v, %v", got, err)
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewItem(t, store, "creator:a")
	testsupport.ItemAtStage(t, store, "creator:b", queue.StagePendingApproval)
	testsupport.ItemAtStage(t, store, "creator:c", queue.StagePendingApproval)

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StageAcquired] != 1 || stats[queue.StagePendingApproval] != 2 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if summary.Total != 3 || summary.Waiting != 2 || summary.Active != 1 {
		t.Fatalf("unexpected summary: %#v", summary)
	}

	approvals, err := store.ApprovalStats(ctx)
	if err != nil || approvals[queue.DecisionPending] != 2 {
		t.Fatalf("unexpected approval stats: %v, %v", approvals, err)
	}

	health, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %#v", health)
	}
	if len(health.MissingColumns) != 0 || health.TotalItems != 3 {
		t.Fatalf("unexpected health contents: %#v", health)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	testsupport.NewItem(t, store, "creator:a")
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	items, err := reopened.List(context.Background(), queue.StageAcquired)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected persisted item after reopen, got %d", len(items))
	}
}

func TestOpenRefusesNewerSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	health, err := store.CheckHealth(context.Background())
	if err != nil || health.SchemaVersion < 1 {
		t.Fatalf("expected migrated schema, got %#v (%v)", health, err)
	}
	store.Close()

	db, err := sql.Open("sqlite", cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", health.SchemaVersion+1); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := queue.Open(cfg); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
