// Package retry runs an operation under an explicit retry policy.
//
// A Policy couples an attempt budget, a backoff schedule, and a classifier
// that decides whether a failure is transient (worth retrying) or permanent
// (return immediately). Each Do call keeps its own attempt state, so one
// Policy value can be shared by concurrent callers.
package retry
