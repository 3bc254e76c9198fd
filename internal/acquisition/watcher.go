package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"reelpipe/internal/logging"
)

// Watcher calls onChange once the inbox has been quiet for the debounce
// period after media or sidecar files appear. It watches the inbox root and
// each target directory below it; new target directories are picked up as
// they are created.
type Watcher struct {
	root     string
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	fs   *fsnotify.Watcher
	wg   sync.WaitGroup
	once sync.Once
}

// NewWatcher prepares a watcher for root. Call Start to begin delivering
// events and Close to release the underlying inotify handles.
func NewWatcher(root string, debounce time.Duration, onChange func(), logger *slog.Logger) (*Watcher, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("inbox watcher requires a root directory")
	}
	if onChange == nil {
		return nil, errors.New("inbox watcher requires a change callback")
	}
	if debounce <= 0 {
		debounce = time.Second
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create inbox watcher: %w", err)
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		onChange: onChange,
		logger:   logging.NewComponentLogger(logger, "inbox-watch"),
		fs:       fsw,
	}, nil
}

// Start registers the inbox directories and runs the event loop until ctx
// is done or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fs.Add(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			w.addTarget(filepath.Join(w.root, entry.Name()))
		}
	}

	w.wg.Add(1)
	go w.loop(ctx)
	w.logger.Info("watching inbox",
		logging.String(logging.FieldEventType, "inbox_watch_start"),
		logging.String("root", w.root),
		logging.Duration("debounce", w.debounce),
	)
	return nil
}

// Close stops the event loop and waits for it to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if w.handle(event) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "inbox watcher error", "inbox_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "new media may wait for the next scheduled run"),
			)
		case <-timer.C:
			w.logger.Debug("inbox changed", logging.String(logging.FieldEventType, "inbox_changed"))
			w.onChange()
		}
	}
}

// handle reports whether event should (re)arm the debounce timer.
func (w *Watcher) handle(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == filepath.Clean(w.root) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addTarget(event.Name)
			return false
		}
	}
	return isInboxFile(event.Name)
}

func (w *Watcher) addTarget(dir string) {
	if err := w.fs.Add(dir); err != nil {
		logging.WarnWithContext(w.logger, "cannot watch target directory", "inbox_watch_error",
			logging.String("path", dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check inotify limits and directory permissions"),
		)
	}
}

func isInboxFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		return true
	}
	_, ok := videoExtensions[ext]
	return ok
}
