package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"stemsplit/internal/services"
)

var errArchiveTooLarge = errors.New("archive contents exceed max_bytes")

func (p *Provider) extractArchive(ctx context.Context, archivePath string) ([]string, error) {
	archivePath = strings.TrimSpace(archivePath)
	if _, err := os.Stat(archivePath); err != nil {
		return nil, services.Wrap(services.ErrSourceUnavailable, stageName, "open archive", archivePath, err)
	}
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, services.Wrap(services.ErrArchiveCorrupt, stageName, "open archive", archivePath, err)
	}
	defer reader.Close()

	dir, err := p.tempDir("archive-*")
	if err != nil {
		return nil, err
	}

	var written int64
	var paths []string
	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, ok, err := entryName(file)
		if err != nil {
			return nil, services.Wrap(services.ErrArchiveCorrupt, stageName, "read entry", archivePath, err)
		}
		if !ok || !p.wanted(name) {
			continue
		}
		dest := filepath.Join(dir, filepath.FromSlash(name))
		n, err := extractEntry(file, dest, p.remaining(written))
		written += n
		if err != nil {
			if errors.Is(err, errArchiveTooLarge) {
				return nil, services.Wrap(services.ErrSourceUnavailable, stageName, "extract entry", archivePath, err)
			}
			return nil, services.Wrap(services.ErrArchiveCorrupt, stageName, "extract entry", file.Name, err)
		}
		paths = append(paths, dest)
	}
	sort.Strings(paths)
	return paths, nil
}

// entryName returns the cleaned slash path of a regular file entry. Directory
// and metadata entries report ok=false. Names escaping the archive root are an error.
func entryName(file *zip.File) (string, bool, error) {
	if file.FileInfo().IsDir() || !file.Mode().IsRegular() {
		return "", false, nil
	}
	name := path.Clean(strings.ReplaceAll(file.Name, "\\", "/"))
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", false, fmt.Errorf("entry %q escapes the archive root", file.Name)
	}
	if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._") {
		return "", false, nil
	}
	return name, true, nil
}

func extractEntry(file *zip.File, dest string, limit int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	src, err := file.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	reader := io.Reader(src)
	if limit >= 0 {
		reader = io.LimitReader(src, limit+1)
	}
	n, copyErr := io.Copy(out, reader)
	closeErr := out.Close()
	if copyErr != nil {
		return n, copyErr
	}
	if closeErr != nil {
		return n, closeErr
	}
	if limit >= 0 && n > limit {
		return n, errArchiveTooLarge
	}
	return n, nil
}

// remaining returns the byte budget left, or -1 when unlimited.
func (p *Provider) remaining(used int64) int64 {
	if p.MaxBytes <= 0 {
		return -1
	}
	left := p.MaxBytes - used
	if left < 0 {
		return 0
	}
	return left
}
