// Package notifications pushes batch milestones to ntfy.
//
// NewService returns an ntfy-backed Service when notifications.ntfy_topic is
// set and a no-op otherwise. Observer adapts a Service to batch.Observer so
// batch start, item failures, incomplete uploads and batch completion are
// announced without the batch runner knowing about HTTP.
package notifications
