// Package logging assembles structured slog loggers and formatting helpers used
// across stemsplit.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code tags log lines
// with batch IDs, item names, and stage names. The console handler promotes
// the item and stage into a bracketed line prefix so interleaved output from
// parallel workers stays readable.
package logging
