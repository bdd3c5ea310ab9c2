// Package main hosts the stemsplit CLI entrypoint and command graph.
//
// The Cobra-based command tree loads configuration once, builds the stage
// pipeline from it, and hands sources to the batch runner. Batch history is
// read back from the records store by the report commands, and doctor and
// staging commands surface the same readiness checks and cleanup the process
// command relies on.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
