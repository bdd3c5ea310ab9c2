// Package records persists batch history.
//
// Every batch, item outcome and delivery is written to SQLite (the default,
// under log_dir) or PostgreSQL. The Recorder plugs into the batch runner as an
// observer; write failures are logged and never affect processing. The
// query side backs `stemsplit report list` and `stemsplit report show`.
package records
