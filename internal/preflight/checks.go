package preflight

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"stemsplit/internal/config"
	"stemsplit/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minBytes available to unprivileged users.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	free, err := FreeBytes(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s free, need %s", humanize.IBytes(free), humanize.IBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s free", humanize.IBytes(free))}
}

// FreeBytes reports the space available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil //nolint:gosec
}

func sameFilesystem(a, b string) bool {
	var sa, sb unix.Stat_t
	if unix.Stat(a, &sa) != nil || unix.Stat(b, &sb) != nil {
		return false
	}
	return sa.Dev == sb.Dev
}

// CheckSystemDeps evaluates the external commands the configured pipeline runs.
// Both the doctor command and process use this to avoid duplicating the
// requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Pipeline.FFmpegBinary,
			Description: "Required for audio extraction and remuxing",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Pipeline.FFprobeBinary,
			Description: "Required for media inspection",
		},
		{
			Name:        "Separator",
			Command:     cfg.Separator.Binary,
			Description: fmt.Sprintf("Required for %s stem separation", cfg.Separator.Engine),
		},
		{
			Name:        "Transcriber",
			Command:     cfg.Transcription.Binary,
			Description: "Required for WhisperX transcription",
			Optional:    !cfg.Pipeline.Transcribe,
		},
	}
	return deps.CheckBinaries(requirements)
}

// MissingRequired returns the names of unavailable non-optional commands.
func MissingRequired(statuses []deps.Status) []string {
	var missing []string
	for _, s := range statuses {
		if s.Blocking() {
			missing = append(missing, s.Name)
		}
	}
	return missing
}
