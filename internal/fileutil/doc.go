// Package fileutil holds the file copy and move helpers used when handing
// artifacts from staging to their final location.
package fileutil
