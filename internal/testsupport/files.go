package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reelpipe/internal/config"
)

// WriteFile fills the target path with size bytes of filler, creating
// parent directories. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteInboxPost drops a fake video for target into the configured inbox,
// with a caption sidecar when caption is non-empty. modTime orders posts
// newest first.
func WriteInboxPost(t testing.TB, cfg *config.Config, target, name, caption string, modTime time.Time) string {
	t.Helper()

	path := filepath.Join(cfg.Paths.InboxDir, target, name)
	WriteFile(t, path, 1024)
	if caption != "" {
		sidecar := map[string]string{
			"caption":    caption,
			"source_url": "https://www.instagram.com/p/" + name,
		}
		data, err := json.Marshal(sidecar)
		if err != nil {
			t.Fatalf("marshal sidecar: %v", err)
		}
		base := path[:len(path)-len(filepath.Ext(path))]
		if err := os.WriteFile(base+".json", data, 0o644); err != nil {
			t.Fatalf("write sidecar: %v", err)
		}
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}
	return path
}
