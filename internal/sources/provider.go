package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"stemsplit/internal/config"
	"stemsplit/internal/guard"
	"stemsplit/internal/logging"
	"stemsplit/internal/retry"
	"stemsplit/internal/services"
	"stemsplit/internal/workunit"
)

const stageName = "sources"

// Provider materializes a Source into local input items.
type Provider struct {
	// Extensions filters archive and download contents; lowercase with a leading dot.
	Extensions []string
	// WorkDir receives extracted archives and downloads.
	WorkDir string
	// MaxBytes caps a download and the total size extracted from one archive. Zero disables the cap.
	MaxBytes int64
	Client   *http.Client
	Retry    retry.Policy
	Logger   *slog.Logger

	guard *guard.Guard
}

// NewProvider builds a provider from configuration.
func NewProvider(cfg *config.Config, logger *slog.Logger) *Provider {
	attempts := cfg.Download.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Provider{
		Extensions: cfg.Pipeline.VideoExtensions,
		WorkDir:    cfg.Paths.StagingDir,
		MaxBytes:   cfg.Download.MaxBytes,
		Client:     &http.Client{Timeout: time.Duration(cfg.Download.TimeoutSeconds) * time.Second},
		Retry: retry.Policy{
			MaxAttempts: attempts,
			Backoff:     retry.Exponential(time.Second, 15*time.Second),
			Classify:    classifyDownload,
		},
		Logger: logger,
	}
}

// WithGuard returns a copy of p that registers its temporary directories with g.
func (p *Provider) WithGuard(g *guard.Guard) *Provider {
	clone := *p
	clone.guard = g
	return &clone
}

// List resolves src into items numbered in input order. Item names are the
// file base names without extension; callers make them unique.
func (p *Provider) List(ctx context.Context, src Source) ([]workunit.InputItem, error) {
	paths, err := p.resolve(ctx, src, true)
	if err != nil {
		return nil, err
	}
	items := make([]workunit.InputItem, 0, len(paths))
	for i, path := range paths {
		base := filepath.Base(path)
		items = append(items, workunit.InputItem{
			Path: path,
			Name: strings.TrimSuffix(base, filepath.Ext(base)),
			Seq:  i,
		})
	}
	logging.WithContext(ctx, p.logger()).Info("input items listed",
		logging.String("source", src.Describe()),
		logging.Int("items", len(items)),
		logging.String(logging.FieldEventType, "source_listed"),
	)
	return items, nil
}

func (p *Provider) resolve(ctx context.Context, src Source, allowManifest bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch s := src.(type) {
	case SingleFile:
		path, err := localFile(s.Path)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	case Files:
		if len(s.Paths) == 0 {
			return nil, services.Wrap(services.ErrSourceUnavailable, stageName, "list files", "no input files given", nil)
		}
		paths := make([]string, 0, len(s.Paths))
		for _, raw := range s.Paths {
			path, err := localFile(raw)
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
		return paths, nil
	case Archive:
		return p.extractArchive(ctx, s.Path)
	case RemoteURL:
		return p.download(ctx, s.URL)
	case Manifest:
		if !allowManifest {
			return nil, services.Wrap(services.ErrSourceUnavailable, stageName, "read manifest", "manifests cannot include other manifests", nil)
		}
		return p.resolveManifest(ctx, s.Path)
	default:
		return nil, services.Wrap(services.ErrValidation, stageName, "dispatch", fmt.Sprintf("unsupported source %T", src), nil)
	}
}

func localFile(raw string) (string, error) {
	path, err := filepath.Abs(strings.TrimSpace(raw))
	if err != nil {
		return "", services.Wrap(services.ErrSourceUnavailable, stageName, "resolve path", raw, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", services.Wrap(services.ErrSourceUnavailable, stageName, "stat input", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", services.Wrap(services.ErrSourceUnavailable, stageName, "stat input", path+" is not a regular file", nil)
	}
	return path, nil
}

// tempDir creates a directory under WorkDir owned by the batch guard.
func (p *Provider) tempDir(pattern string) (string, error) {
	dir, err := os.MkdirTemp(p.WorkDir, pattern)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, stageName, "create temp dir", "could not create directory in staging_dir", err)
	}
	if p.guard != nil {
		p.guard.Register(dir)
	}
	return dir, nil
}

func (p *Provider) wanted(name string) bool {
	if len(p.Extensions) == 0 {
		return true
	}
	return slices.Contains(p.Extensions, strings.ToLower(filepath.Ext(name)))
}

func (p *Provider) logger() *slog.Logger {
	return logging.NewComponentLogger(p.Logger, stageName)
}
