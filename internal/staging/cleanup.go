package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"reelpipe/internal/logging"
)

// orphanAge is how long a non-item entry may sit in the staging directory
// before it is treated as an abandoned temp directory.
const orphanAge = 24 * time.Hour

// SweepResult contains the outcome of a staging sweep.
type SweepResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// Sweep removes per-item work directories (<staging>/<id>) whose item is not
// in active, plus any other directory older than a day. Active items keep
// their processed media until they reach a terminal stage.
func Sweep(ctx context.Context, stagingDir string, active map[int64]struct{}, logger *slog.Logger) SweepResult {
	result := SweepResult{}

	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-orphanAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(stagingDir, entry.Name())

		if id, err := strconv.ParseInt(entry.Name(), 10, 64); err == nil {
			if _, ok := active[id]; ok {
				continue
			}
		} else {
			info, err := entry.Info()
			if err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logging.WarnWithContext(logger, "failed to remove staging directory", "staging_cleanup_failed",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		if logger != nil {
			logger.Debug("removed staging directory",
				logging.String("path", dirPath),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}

	return result
}
