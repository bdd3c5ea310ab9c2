// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect executes ffprobe and returns the parsed Result; helper methods give
// stream counts and container duration for the extraction stage.
package ffprobe
