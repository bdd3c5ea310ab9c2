package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"stemsplit/internal/services"
)

// ManifestDocument is the YAML layout of a manifest file:
//
//	inputs:
//	  - path: clips/intro.mp4
//	  - archive: batch.zip
//	  - url: https://example.com/videos.zip
//
// Relative paths resolve against the manifest's directory.
type ManifestDocument struct {
	Inputs []ManifestEntry `yaml:"inputs"`
}

// ManifestEntry names exactly one input.
type ManifestEntry struct {
	Path    string `yaml:"path,omitempty"`
	Archive string `yaml:"archive,omitempty"`
	URL     string `yaml:"url,omitempty"`
}

// ParseManifest decodes and validates a manifest document. Unknown keys are rejected.
func ParseManifest(data []byte) (ManifestDocument, error) {
	var doc ManifestDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return doc, errors.New("manifest is empty")
		}
		return doc, err
	}
	if len(doc.Inputs) == 0 {
		return doc, errors.New("manifest lists no inputs")
	}
	for i, entry := range doc.Inputs {
		set := 0
		for _, v := range []string{entry.Path, entry.Archive, entry.URL} {
			if strings.TrimSpace(v) != "" {
				set++
			}
		}
		if set != 1 {
			return doc, fmt.Errorf("inputs[%d]: set exactly one of path, archive, url", i)
		}
	}
	return doc, nil
}

// Source converts the entry to its source variant, resolving relative paths against baseDir.
func (e ManifestEntry) Source(baseDir string) Source {
	resolve := func(p string) string {
		p = strings.TrimSpace(p)
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	switch {
	case strings.TrimSpace(e.URL) != "":
		return RemoteURL{URL: strings.TrimSpace(e.URL)}
	case strings.TrimSpace(e.Archive) != "":
		return Archive{Path: resolve(e.Archive)}
	default:
		return SingleFile{Path: resolve(e.Path)}
	}
}

func (p *Provider) resolveManifest(ctx context.Context, manifestPath string) ([]string, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, services.Wrap(services.ErrSourceUnavailable, stageName, "read manifest", manifestPath, err)
	}
	doc, err := ParseManifest(data)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "parse manifest", manifestPath, err)
	}
	baseDir := filepath.Dir(manifestPath)
	var paths []string
	for _, entry := range doc.Inputs {
		resolved, err := p.resolve(ctx, entry.Source(baseDir), false)
		if err != nil {
			return nil, err
		}
		paths = append(paths, resolved...)
	}
	return paths, nil
}
