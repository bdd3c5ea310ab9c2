package guard

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"stemsplit/internal/logging"
)

// Result contains the outcome of a Dispose call.
type Result struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with the error that prevented its removal.
type CleanupError struct {
	Path  string
	Error error
}

// Guard owns the cleanup of one work unit's intermediate artifacts.
type Guard struct {
	mu       sync.Mutex
	logger   *slog.Logger
	paths    []string
	disposed bool
	remove   func(string) error
}

// New constructs an empty guard.
func New(logger *slog.Logger) *Guard {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Guard{logger: logger, remove: os.RemoveAll}
}

// Register starts tracking path. Registering an already tracked path is a
// no-op. After Dispose the path is deleted immediately instead.
func (g *Guard) Register(path string) {
	path = clean(path)
	if path == "" {
		return
	}
	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		g.logger.Debug("artifact registered after dispose; removing",
			logging.String("path", path),
			logging.String(logging.FieldEventType, "guard_late_register"),
		)
		if err := g.removePath(path); err != nil {
			g.warn(path, err)
		}
		return
	}
	defer g.mu.Unlock()
	if slices.Contains(g.paths, path) {
		return
	}
	g.paths = append(g.paths, path)
}

// Release stops tracking path and reports whether it was tracked.
func (g *Guard) Release(path string) bool {
	path = clean(path)
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := slices.Index(g.paths, path)
	if idx < 0 {
		return false
	}
	g.paths = slices.Delete(g.paths, idx, idx+1)
	return true
}

// Tracked returns the currently tracked paths in registration order.
func (g *Guard) Tracked() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.paths)
}

// Disposed reports whether Dispose has run.
func (g *Guard) Disposed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disposed
}

// Dispose deletes every tracked path, newest first. Missing paths count as
// removed. Failures are logged and collected without stopping the sweep.
// Only the first call does any work.
func (g *Guard) Dispose() Result {
	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		return Result{}
	}
	g.disposed = true
	paths := g.paths
	g.paths = nil
	g.mu.Unlock()

	var result Result
	for i := len(paths) - 1; i >= 0; i-- {
		path := paths[i]
		if err := g.removePath(path); err != nil {
			g.warn(path, err)
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		result.Removed = append(result.Removed, path)
	}
	if len(result.Removed) > 0 || len(result.Errors) > 0 {
		g.logger.Debug("guard disposed",
			logging.Int("removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
			logging.String(logging.FieldEventType, "guard_disposed"),
		)
	}
	return result
}

func (g *Guard) removePath(path string) error {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			g.logger.Debug("artifact already removed", logging.String("path", path))
			return nil
		}
		return err
	}
	err := g.remove(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (g *Guard) warn(path string, err error) {
	g.logger.Warn("failed to remove artifact",
		logging.String("path", path),
		logging.Error(err),
		logging.String(logging.FieldEventType, "guard_dispose_failed"),
		logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
		logging.String(logging.FieldImpact, "disk space not reclaimed"),
	)
}

func clean(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	return filepath.Clean(path)
}
