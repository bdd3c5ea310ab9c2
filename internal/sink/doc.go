// Package sink publishes finalized outputs to a remote destination with
// bounded retries.
//
// Remote is the minimal upload contract; MinioRemote targets S3-compatible
// object stores and DirRemote mirrors into a local directory. Retrying wraps a
// Remote with a retry.Policy and the Classify function, reporting each upload
// as a Delivery value instead of an error. Publishing only reads the local
// file; ownership of it stays with the caller.
package sink
