package publishing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelpipe/internal/fileutil"
	"reelpipe/internal/queue"
)

// Manifest is written next to each published media file.
type Manifest struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	Media       string    `json:"media"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// OutboxPublisher publishes by copying media plus a manifest into
// <root>/<id>/. Each entry appears atomically.
type OutboxPublisher struct {
	Root string
	now  func() time.Time
}

// NewOutboxPublisher constructs a publisher rooted at dir.
func NewOutboxPublisher(dir string) *OutboxPublisher {
	return &OutboxPublisher{Root: dir, now: time.Now}
}

// Publish copies processedRef into a fresh outbox entry and returns its id.
func (p *OutboxPublisher) Publish(ctx context.Context, processedRef string, meta queue.Metadata) (string, error) {
	if strings.TrimSpace(meta.Title) == "" {
		return "", &Error{Op: "validate", Err: errors.New("title is required")}
	}
	info, err := os.Stat(processedRef)
	if err != nil || info.IsDir() {
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return "", &Error{Op: "open media", Err: fmt.Errorf("processed media %q missing", processedRef)}
		}
		return "", &Error{Op: "open media", Retriable: true, Err: err}
	}
	if err := os.MkdirAll(p.Root, 0o755); err != nil {
		return "", &Error{Op: "outbox", Retriable: true, Err: err}
	}

	id := uuid.NewString()
	tmpDir, err := os.MkdirTemp(p.Root, ".publish-")
	if err != nil {
		return "", &Error{Op: "outbox", Retriable: true, Err: err}
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }

	mediaName := "media" + strings.ToLower(filepath.Ext(processedRef))
	if _, err := fileutil.CopyVerified(ctx, processedRef, filepath.Join(tmpDir, mediaName)); err != nil {
		cleanup()
		return "", &Error{Op: "copy media", Retriable: true, Err: err}
	}

	thumbnail, err := copyThumbnail(ctx, meta.Thumbnail, tmpDir)
	if err != nil {
		cleanup()
		return "", &Error{Op: "copy thumbnail", Retriable: true, Err: err}
	}

	manifest := Manifest{
		ID:          id,
		Title:       meta.Title,
		Description: meta.Description,
		Tags:        meta.Tags,
		SourceURL:   meta.SourceURL,
		Media:       mediaName,
		Thumbnail:   thumbnail,
		PublishedAt: p.now().UTC(),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		cleanup()
		return "", &Error{Op: "manifest", Err: err}
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "manifest.json"), data, 0o644); err != nil {
		cleanup()
		return "", &Error{Op: "manifest", Retriable: true, Err: err}
	}
	if err := os.Rename(tmpDir, filepath.Join(p.Root, id)); err != nil {
		cleanup()
		return "", &Error{Op: "commit", Retriable: true, Err: err}
	}
	return id, nil
}

// copyThumbnail copies the item's thumbnail into dir and returns its entry
// name. A thumbnail that no longer exists is left out.
func copyThumbnail(ctx context.Context, src, dir string) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	if info, err := os.Stat(src); err != nil || info.IsDir() {
		return "", nil
	}
	name := "thumbnail" + strings.ToLower(filepath.Ext(src))
	if _, err := fileutil.CopyVerified(ctx, src, filepath.Join(dir, name)); err != nil {
		return "", err
	}
	return name, nil
}

// Healthy reports whether the outbox directory can be written.
func (p *OutboxPublisher) Healthy() error {
	if err := os.MkdirAll(p.Root, 0o755); err != nil {
		return err
	}
	check, err := os.CreateTemp(p.Root, ".check-")
	if err != nil {
		return err
	}
	name := check.Name()
	check.Close()
	return os.Remove(name)
}
