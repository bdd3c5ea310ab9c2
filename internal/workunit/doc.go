// Package workunit defines the per-item state that flows through the stage
// pipeline: the input item, its artifacts, status transitions, and the stage
// timeline.
package workunit
