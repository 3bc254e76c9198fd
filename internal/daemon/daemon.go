package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"reelpipe/internal/acquisition"
	"reelpipe/internal/config"
	"reelpipe/internal/deps"
	"reelpipe/internal/logging"
	"reelpipe/internal/notifications"
	"reelpipe/internal/queue"
	"reelpipe/internal/workflow"
)

// Daemon coordinates the scheduler and HTTP API and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock
	api      *apiServer
	inbox    *acquisition.Watcher

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	DatabasePath string
	LockFilePath string
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, notifier notifications.Service) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		notifier: notifier,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg.Paths.APIBind, cfg.Paths.APIToken, d, store, logger)
	return d, nil
}

// Start acquires the daemon lock, starts the schedule and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelpipe daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		cancel()
		return err
	}

	if d.cfg.Schedule.WatchInbox {
		d.inbox = d.startInboxWatch(runCtx)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("reelpipe daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.inbox != nil {
		_ = d.inbox.Close()
		d.inbox = nil
	}
	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("reelpipe daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// startInboxWatch is best effort: without it new media still waits for the
// schedule or a manual trigger.
func (d *Daemon) startInboxWatch(ctx context.Context) *acquisition.Watcher {
	trigger := func() {
		runID := d.workflow.TriggerRun(workflow.TriggerWatch)
		d.logger.Info("inbox change triggered run",
			logging.String(logging.FieldEventType, "run_triggered"),
			logging.String(logging.FieldTrigger, workflow.TriggerWatch),
			logging.String("run_id", runID),
		)
	}
	w, err := acquisition.NewWatcher(d.cfg.Paths.InboxDir, d.cfg.WatchDebounce(), trigger, d.logger)
	if err == nil {
		if err = w.Start(ctx); err != nil {
			_ = w.Close()
		}
	}
	if err != nil {
		logging.WarnWithContext(d.logger, "inbox watch unavailable", "inbox_watch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "new media waits for the schedule or a manual trigger"),
		)
		return nil
	}
	return w
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddress returns the address the HTTP API listens on, or "" when the
// API is disabled or not started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Dependencies: deps.CheckBinaries(deps.Requirements(d.cfg)),
	}
}

// Decide records an approval decision through the workflow's approval gate.
func (d *Daemon) Decide(ctx context.Context, itemID int64, decision queue.Decision, by string) (queue.ApprovalRequest, error) {
	req, err := d.workflow.Approval().Decide(ctx, itemID, decision, by)
	if err != nil {
		return req, err
	}
	d.logger.Info("approval decided",
		logging.String(logging.FieldEventType, "approval_decided"),
		logging.Int64(logging.FieldItemID, itemID),
		logging.String("decision", string(decision)),
		logging.String("decided_by", req.DecidedBy),
	)
	return req, nil
}

// TriggerRun starts an asynchronous pipeline run.
func (d *Daemon) TriggerRun(trigger string) string {
	return d.workflow.TriggerRun(trigger)
}

// TestNotification sends a test notification using the configured channels.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	n := d.cfg.Notifications
	if strings.TrimSpace(n.NtfyTopic) == "" && (strings.TrimSpace(n.TelegramToken) == "" || strings.TrimSpace(n.TelegramChatID) == "") {
		return false, "no notification channel configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTestNotification, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
