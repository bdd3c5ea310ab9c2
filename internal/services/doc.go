// Package services defines shared utilities consumed by the pipeline stages,
// the batch orchestrator, and the external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp batch IDs, item names, stage names, and
//     item run identifiers for logging.
//   - The error taxonomy (source, archive, extraction, model, transcription,
//     mux, and sink markers) plus the Wrap helper that keeps stage context in
//     messages while staying matchable with errors.Is.
//
// Stage code should wrap failures with one of the markers so batch reports and
// logs classify them consistently.
package services
