package separator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

// Stem names produced by every engine.
const (
	StemVocals        = "vocals"
	StemAccompaniment = "accompaniment"
)

// Stem is one separated audio file.
type Stem struct {
	Name string
	Path string
}

// Separator splits audioPath into stems written under outDir.
type Separator interface {
	Separate(ctx context.Context, audioPath, outDir string) ([]Stem, error)
	// Engine returns the engine name for logs.
	Engine() string
	// Commands lists the executables the engine needs.
	Commands() []string
}

// CommandRunner executes an external command with extra environment entries.
type CommandRunner func(ctx context.Context, env []string, name string, args ...string) error

// Options configures a command line engine.
type Options struct {
	Binary string
	Model  string
	UseGPU bool
}

// ErrNoStems reports that the engine exited cleanly without producing audio.
var ErrNoStems = errors.New("separation produced no stems")

func defaultRunner(ctx context.Context, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tail(strings.TrimSpace(string(output)), 512))
	}
	return nil
}

// collectStems walks dir for audio files and maps them to stem names.
func collectStems(dir string) ([]Stem, error) {
	var stems []Stem
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".wav" && ext != ".flac" && ext != ".mp3" {
			return nil
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if name == "no_vocals" {
			name = StemAccompaniment
		}
		stems = append(stems, Stem{Name: name, Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect stems: %w", err)
	}
	slices.SortFunc(stems, func(a, b Stem) int {
		return stemRank(a.Name) - stemRank(b.Name)
	})
	return stems, nil
}

func stemRank(name string) int {
	switch name {
	case StemVocals:
		return 0
	case StemAccompaniment:
		return 1
	default:
		return 2
	}
}

// HasVocals reports whether stems include the vocal stem.
func HasVocals(stems []Stem) bool {
	return slices.ContainsFunc(stems, func(s Stem) bool { return s.Name == StemVocals })
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
