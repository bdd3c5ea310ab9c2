package preflight

import (
	"stemsplit/internal/config"
)

// MinFreeBytes is the free space a batch needs on the staging and output
// filesystems before it starts.
const MinFreeBytes uint64 = 2 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem checks a batch depends on. minFree is the
// space required on the staging and output filesystems; MinFreeBytes is the
// usual value.
func RunAll(cfg *config.Config, minFree uint64) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))
	results = append(results, CheckFreeSpace("Staging free space", cfg.Paths.StagingDir, minFree))
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	if !sameFilesystem(cfg.Paths.StagingDir, cfg.Paths.OutputDir) {
		results = append(results, CheckFreeSpace("Output free space", cfg.Paths.OutputDir, minFree))
	}

	if cfg.Sink.Kind == config.SinkDir {
		results = append(results, CheckDirectoryAccess("Sink directory", cfg.Sink.Dir))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
