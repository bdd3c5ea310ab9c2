package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"stemsplit/internal/fileutil"
	"stemsplit/internal/guard"
)

// storedExtensions are already compressed and are stored without deflate.
var storedExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".webm": true,
	".mp3":  true,
	".flac": true,
}

// bundle zips the outputs of succeeded entries into the staging dir and
// hands the archive off to the output dir. Until the handoff the archive is
// owned by g.
func (r *Runner) bundle(ctx context.Context, batchID string, entries []Entry, g *guard.Guard) (string, error) {
	staged := filepath.Join(r.StagingDir, batchID+".zip")
	g.Register(staged)
	if err := writeBundle(ctx, staged, entries); err != nil {
		return "", err
	}

	dest := filepath.Join(r.OutputDir, batchID+".zip")
	g.Release(staged)
	if err := fileutil.MoveFile(staged, dest); err != nil {
		g.Register(staged)
		return "", fmt.Errorf("move bundle: %w", err)
	}
	return dest, nil
}

func writeBundle(ctx context.Context, dest string, entries []Entry) (err error) {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close bundle: %w", closeErr)
		}
	}()

	zw := zip.NewWriter(out)
	for _, entry := range entries {
		if !entry.Outcome.Succeeded() {
			continue
		}
		for _, output := range entry.Outcome.Outputs {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := path.Join(entry.Item.Name, filepath.Base(output))
			if err := addFile(zw, name, output); err != nil {
				return err
			}
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish bundle: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header %s: %w", src, err)
	}
	header.Name = name
	header.Method = zip.Deflate
	if storedExtensions[strings.ToLower(filepath.Ext(src))] {
		header.Method = zip.Store
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
