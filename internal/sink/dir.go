package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stemsplit/internal/fileutil"
	"stemsplit/internal/services"
)

// DirRemote mirrors published files into a local directory tree.
type DirRemote struct {
	root string
}

// NewDirRemote constructs a DirRemote rooted at root.
func NewDirRemote(root string) *DirRemote {
	return &DirRemote{root: root}
}

// Publish implements Remote.
func (d *DirRemote) Publish(ctx context.Context, localPath, destination string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(d.root, filepath.FromSlash(destination))
	rel, err := filepath.Rel(d.root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return services.Wrap(services.ErrSinkPermanent, "publish", "resolve destination",
			fmt.Sprintf("destination %q escapes sink directory", destination), err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create sink directory: %w", err)
	}
	if err := fileutil.CopyFile(localPath, target); err != nil {
		return fmt.Errorf("copy to sink: %w", err)
	}
	return nil
}

// Check implements Checker.
func (d *DirRemote) Check(context.Context) error {
	info, err := os.Stat(d.root)
	if err != nil {
		return fmt.Errorf("sink directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("sink directory %s is not a directory", d.root)
	}
	return nil
}
