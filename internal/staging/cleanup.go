package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stemsplit/internal/logging"
)

// Prefixes of the work directories batches create under staging_dir.
var workDirPrefixes = []string{"item-", "archive-", "download-"}

// CleanStaleResult contains the outcome of a stale directory cleanup operation.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// IsWorkEntry reports whether name is something a batch leaves in staging:
// an item, archive, or download work directory, or a bundle being assembled.
func IsWorkEntry(name string, isDir bool) bool {
	if !isDir {
		return strings.EqualFold(filepath.Ext(name), ".zip")
	}
	for _, prefix := range workDirPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// CleanStale removes batch work entries older than maxAge. Entries stemsplit
// did not create are left alone. It stops early when ctx is done.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

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

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !IsWorkEntry(entry.Name(), entry.IsDir()) {
			continue
		}

		path := filepath.Join(stagingDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			logging.WarnWithContext(logger, "failed to remove stale staging entry", "staging_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		if logger != nil {
			logger.Info("removed stale staging entry",
				logging.String("path", path),
				logging.Duration("age", time.Since(info.ModTime())),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}

	return result
}

// ListEntries returns the batch work entries in the staging directory with their metadata.
func ListEntries(stagingDir string) ([]EntryInfo, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []EntryInfo
	for _, entry := range entries {
		if !IsWorkEntry(entry.Name(), entry.IsDir()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(stagingDir, entry.Name())
		size := info.Size()
		if entry.IsDir() {
			size, _ = dirSize(path)
		}

		out = append(out, EntryInfo{
			Name:    entry.Name(),
			Path:    path,
			ModTime: info.ModTime(),
			Size:    size,
		})
	}

	return out, nil
}

// EntryInfo contains metadata about a staging entry.
type EntryInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// dirSize calculates the total size of a directory recursively.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best effort
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
