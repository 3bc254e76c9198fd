package acquisition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"reelpipe/internal/queue"
	"reelpipe/internal/services"
)

// RawItem is one post offered by an acquisition source.
type RawItem struct {
	SourceKey  string
	PayloadRef string
	Metadata   queue.Metadata
}

// Source fetches the newest posts for a target account.
type Source interface {
	Fetch(ctx context.Context, target string, limit int) ([]RawItem, error)
}

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".mkv":  {},
	".webm": {},
}

// DirectorySource reads posts dropped into <root>/<target>/. A sibling
// <file>.json or <name>.json sidecar may carry the caption and source URL.
// Source keys keep the extension, so clip.mp4 and clip.mov are separate posts.
type DirectorySource struct {
	Root string
}

// NewDirectorySource constructs a source rooted at the inbox directory.
func NewDirectorySource(root string) *DirectorySource {
	return &DirectorySource{Root: root}
}

type sidecar struct {
	Caption   string `json:"caption"`
	SourceURL string `json:"source_url"`
}

type candidate struct {
	path    string
	name    string
	modTime time.Time
}

// Fetch returns up to limit posts for target, newest first. A target with no
// inbox directory yields no posts.
func (s *DirectorySource) Fetch(ctx context.Context, target string, limit int) ([]RawItem, error) {
	target = queue.NormalizeTargetName(target)
	if target == "" || strings.ContainsAny(target, `/\`) || target == "." || target == ".." {
		return nil, services.Wrap(services.ErrValidation, "acquire", "fetch", fmt.Sprintf("invalid target %q", target), nil)
	}
	dir := filepath.Join(s.Root, target)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrTransient, "acquire", "read inbox", dir, err)
	}

	var candidates []candidate
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		if _, ok := videoExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(dir, entry.Name()),
			name:    entry.Name(),
			modTime: info.ModTime(),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].modTime.Equal(candidates[j].modTime) {
			return candidates[i].name < candidates[j].name
		}
		return candidates[i].modTime.After(candidates[j].modTime)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	items := make([]RawItem, 0, len(candidates))
	for _, c := range candidates {
		base := strings.TrimSuffix(c.name, filepath.Ext(c.name))
		items = append(items, RawItem{
			SourceKey:  target + ":" + c.name,
			PayloadRef: c.path,
			Metadata:   readSidecar(filepath.Join(dir, c.name+".json"), filepath.Join(dir, base+".json")),
		})
	}
	return items, nil
}

// readSidecar loads the first sidecar that exists. "clip.mp4.json" belongs
// to one file; "clip.json" is shared by every clip.* in the directory.
func readSidecar(paths ...string) queue.Metadata {
	var (
		data []byte
		err  error
	)
	for _, path := range paths {
		if data, err = os.ReadFile(path); err == nil {
			break
		}
	}
	if err != nil {
		return queue.Metadata{}
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return queue.Metadata{}
	}
	return queue.Metadata{
		Caption:   strings.TrimSpace(sc.Caption),
		SourceURL: strings.TrimSpace(sc.SourceURL),
	}
}
