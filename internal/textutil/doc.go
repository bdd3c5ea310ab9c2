// Package textutil provides filename sanitization and display helpers built on
// golang.org/x/text.
//
// OutputName turns arbitrary source file names (including non-ASCII names)
// into portable directory names; DisplayTitle renders them for humans.
package textutil
