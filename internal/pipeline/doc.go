// Package pipeline runs one input item through the ordered stage handlers.
//
// A Runner owns the item's work directory and resource guard for the length
// of Run: the work directory is created under the staging dir and registered
// first, every stage registers what it produces, and the guard is disposed on
// every exit path. Only artifacts that finalize released survive the run.
package pipeline
