package testsupport

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"reelpipe/internal/config"
	"reelpipe/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem acquires a new item for tests using the provided store.
func NewItem(t testing.TB, store *queue.Store, sourceKey string) *queue.Item {
	t.Helper()

	item, err := store.CreateItem(context.Background(), queue.NewItem{
		SourceKey:  sourceKey,
		Target:     "creator",
		PayloadRef: "/tmp/" + sourceKey + ".mp4",
		Metadata:   queue.Metadata{Caption: "test caption for " + sourceKey},
	})
	if err != nil {
		t.Fatalf("store.CreateItem: %v", err)
	}
	return item
}

// ItemAtStage acquires an item and walks it along the lifecycle until it
// reaches the requested stage. Passing transformed assigns a fingerprint and
// writes a processed media file; approved is reached through a recorded
// decision.
func ItemAtStage(t testing.TB, store *queue.Store, sourceKey string, stage queue.Stage) *queue.Item {
	t.Helper()

	item := NewItem(t, store, sourceKey)
	path, ok := pathTo[stage]
	if !ok && stage != queue.StageAcquired {
		t.Fatalf("no test path to stage %s", stage)
	}
	ctx := context.Background()
	for _, next := range path {
		if next == queue.StageTransformed {
			item.Fingerprint = fmt.Sprintf("%016x", uint64(item.ID)<<32|0xabcdef)
			item.ProcessedRef = filepath.Join(t.TempDir(), sourceKey+"-processed.mp4")
			WriteFile(t, item.ProcessedRef, 256)
		}
		if next == queue.StageApproved {
			if _, err := store.DecideApproval(ctx, item.ID, queue.DecisionApproved, "tester"); err != nil {
				t.Fatalf("DecideApproval: %v", err)
			}
			reloaded, err := store.GetByID(ctx, item.ID)
			if err != nil || reloaded == nil {
				t.Fatalf("reload item %d: %v", item.ID, err)
			}
			item = reloaded
			continue
		}
		if next == queue.StagePendingApproval {
			if _, err := store.CreateApprovalRequest(ctx, item.ID); err != nil {
				t.Fatalf("CreateApprovalRequest: %v", err)
			}
		}
		item.Advance(next)
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	return item
}

var pathTo = map[queue.Stage][]queue.Stage{
	queue.StageTransformed:     {queue.StageTransformed},
	queue.StageUnique:          {queue.StageTransformed, queue.StageUnique},
	queue.StagePendingApproval: {queue.StageTransformed, queue.StageUnique, queue.StagePendingApproval},
	queue.StageApproved:        {queue.StageTransformed, queue.StageUnique, queue.StagePendingApproval, queue.StageApproved},
}
