// Package preflight provides readiness checks for the filesystem paths and
// external commands a stemsplit batch depends on.
//
// These checks run in two contexts:
//   - "stemsplit process" calls RunAll before listing the source, together
//     with each stage's health check. If any check fails the batch is not
//     started, to avoid leaving half-written stems on a full disk.
//   - "stemsplit doctor" prints every result, CheckSystemDeps included.
package preflight
