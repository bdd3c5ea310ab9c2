// Package audio chooses which audio stream of a source video feeds stem
// separation.
//
// Select ranks audio streams by preferred language (matched with golang.org/x/text/language), default disposition, and
// channel count, and skips commentary or descriptive tracks when a regular
// track exists.
package audio
