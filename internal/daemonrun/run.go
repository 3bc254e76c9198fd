package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"reelpipe/internal/acquisition"
	"reelpipe/internal/config"
	"reelpipe/internal/daemon"
	"reelpipe/internal/deps"
	"reelpipe/internal/logging"
	"reelpipe/internal/logs"
	"reelpipe/internal/notifications"
	"reelpipe/internal/preflight"
	"reelpipe/internal/publishing"
	"reelpipe/internal/queue"
	"reelpipe/internal/transform"
	"reelpipe/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the reelpipe daemon runtime loop and blocks until a shutdown
// signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("reelpiped-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		FilePath:    logPath,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update reelpiped.log link: %v\n", err)
	}
	logDependencySnapshot(logger, cfg)
	for _, failed := range preflight.Failed(preflight.RunAll(signalCtx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldErrorHint, "run reelpipe check for a full report"),
		)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "reelpiped.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open item store", logging.Error(err))
		return err
	}

	collab := NewCollaborators(cfg, logger)
	manager := workflow.NewManager(cfg, store, collab, logger)

	d, err := daemon.New(cfg, store, logger, manager, collab.Notifier)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and the configured api_bind"),
			logging.String(logging.FieldImpact, "no pipeline runs will be scheduled"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("reelpipe daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// NewCollaborators builds the production acquisition source, transform
// engine, publisher and notifier from configuration.
func NewCollaborators(cfg *config.Config, logger *slog.Logger) workflow.Collaborators {
	outbox := publishing.NewOutboxPublisher(cfg.Paths.OutboxDir)
	engine := transform.NewFFmpegEngine(
		cfg.Transform.FFmpegBinary,
		cfg.Paths.StagingDir,
		cfg.Transform.Width,
		cfg.Transform.Height,
		cfg.Transform.FrameOffset,
		logger,
	)
	engine.Branding = transform.Branding{
		Credit:        cfg.Transform.CreditOverlay,
		SubscribeText: cfg.Transform.SubscribeText,
		FontFile:      cfg.Transform.FontFile,
		Intro:         cfg.Transform.BrandedIntro,
		Outro:         cfg.Transform.BrandedOutro,
	}
	return workflow.Collaborators{
		Source:       acquisition.NewDirectorySource(cfg.Paths.InboxDir),
		Engine:       engine,
		Publisher:    publishing.NewBreakerPublisher(outbox, cfg.Publishing.BreakerFailures, cfg.BreakerTimeout(), logger),
		Notifier:     notifications.NewService(cfg),
		Requirements: deps.Requirements(cfg),
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := logs.CurrentPath(logDir)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		attrs = append(attrs,
			logging.Bool(status.Command+"_available", status.Available),
			logging.String(status.Command+"_binary", status.Command),
		)
	}
	attrs = append(attrs,
		logging.Bool("ntfy_enabled", cfg.Notifications.NtfyTopic != ""),
		logging.Bool("telegram_enabled", cfg.Notifications.TelegramToken != "" && cfg.Notifications.TelegramChatID != ""),
		logging.Bool("schedule_enabled", cfg.Schedule.Enabled),
		logging.Bool("api_token_present", cfg.Paths.APIToken != ""),
	)
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
