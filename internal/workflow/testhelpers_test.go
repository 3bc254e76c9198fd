package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"reelpipe/internal/acquisition"
	"reelpipe/internal/config"
	"reelpipe/internal/fingerprint"
	"reelpipe/internal/notifications"
	"reelpipe/internal/publishing"
	"reelpipe/internal/queue"
	"reelpipe/internal/testsupport"
	"reelpipe/internal/transform"
	"reelpipe/internal/workflow"
)

// fakeEngine copies the payload into staging and assigns the fingerprint
// registered for the payload's base name.
type fakeEngine struct {
	staging      string
	fingerprints map[string]fingerprint.Fingerprint
}

func (e *fakeEngine) Transform(_ context.Context, req transform.Request) (transform.Result, error) {
	fp, ok := e.fingerprints[filepath.Base(req.PayloadRef)]
	if !ok {
		return transform.Result{}, errors.New("no fingerprint registered")
	}
	dir := filepath.Join(e.staging, strconv.FormatInt(req.ItemID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return transform.Result{}, err
	}
	out := filepath.Join(dir, "processed.mp4")
	if err := os.WriteFile(out, []byte("processed"), 0o644); err != nil {
		return transform.Result{}, err
	}
	thumb := filepath.Join(dir, transform.ThumbnailName)
	if err := os.WriteFile(thumb, []byte("jpeg"), 0o644); err != nil {
		return transform.Result{}, err
	}
	return transform.Result{ProcessedRef: out, ThumbnailRef: thumb, Fingerprint: fp}, nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, queue.Metadata) (string, error) {
	return "", &publishing.Error{Op: "upload", Retriable: true, Err: errors.New("quota exceeded")}
}

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.payloads = append(n.payloads, payload)
	return nil
}

func (n *recordingNotifier) count(event notifications.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e == event {
			total++
		}
	}
	return total
}

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	engine   *fakeEngine
	notifier *recordingNotifier
	manager  *workflow.Manager
}

func newHarness(t *testing.T, publisher publishing.Publisher, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	engine := &fakeEngine{staging: cfg.Paths.StagingDir, fingerprints: map[string]fingerprint.Fingerprint{}}
	notifier := &recordingNotifier{}
	if publisher == nil {
		publisher = publishing.NewOutboxPublisher(cfg.Paths.OutboxDir)
	}
	manager := workflow.NewManager(cfg, store, workflow.Collaborators{
		Source:    acquisition.NewDirectorySource(cfg.Paths.InboxDir),
		Engine:    engine,
		Publisher: publisher,
		Notifier:  notifier,
	}, nil)
	return &harness{cfg: cfg, store: store, engine: engine, notifier: notifier, manager: manager}
}

func stageOf(t *testing.T, store *queue.Store, sourceKey string) queue.Stage {
	t.Helper()
	item, err := store.GetBySourceKey(context.Background(), sourceKey)
	if err != nil || item == nil {
		t.Fatalf("GetBySourceKey(%s): %v", sourceKey, err)
	}
	return item.Stage
}

// countingPublisher records every media reference it is asked to publish.
type countingPublisher struct {
	mu    sync.Mutex
	delay time.Duration
	calls map[string]int
}

func (p *countingPublisher) Publish(_ context.Context, processedRef string, _ queue.Metadata) (string, error) {
	time.Sleep(p.delay)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[processedRef]++
	return "pub-" + filepath.Base(processedRef), nil
}

func (p *countingPublisher) count(processedRef string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[processedRef]
}
