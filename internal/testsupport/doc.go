// Package testsupport provides shared helpers for package tests: temp-dir
// configs, stub binaries, file helpers, and fakes for the external media
// tools.
package testsupport
