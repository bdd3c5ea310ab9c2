// Package stages implements the per-item pipeline stages: extract audio,
// separate stems, transcribe (optional), recombine or strip audio, finalize
// outputs, and publish (optional).
//
// Each stage satisfies stage.Handler. Stages register every file they create
// with the work unit's guard before the file exists, so a failure at any point
// leaves nothing behind once the runner disposes the guard. Failures are
// returned as services.Wrap errors carrying the stage marker (ErrExtraction,
// ErrModel, ErrMux); transcription problems degrade the transcript instead of
// failing the item.
package stages
