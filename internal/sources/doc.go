// Package sources turns a batch source into an ordered list of input items.
//
// A Source is one of SingleFile, Files, Archive, RemoteURL or Manifest. The
// Provider dispatches on the variant once; archives are extracted and remote
// URLs downloaded into temporary directories under the staging dir that are
// registered with the batch guard, so they disappear with the batch.
package sources
