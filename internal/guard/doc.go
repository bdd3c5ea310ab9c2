// Package guard tracks the temporary files and directories a single work unit
// creates and guarantees they are removed when the unit ends.
//
// Artifacts are registered as soon as their path is known, released when
// ownership moves elsewhere (for example into the output directory), and
// everything still tracked is deleted by Dispose in reverse registration
// order. Dispose is terminal: anything registered afterwards is deleted on
// the spot.
package guard
