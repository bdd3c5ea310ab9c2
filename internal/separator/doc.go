// Package separator drives external source separation engines that split an
// audio file into stems.
//
// Spleeter and Demucs are supported through their command line interfaces.
// Both produce a vocal stem and an accompaniment stem; Demucs' "no_vocals"
// output is reported as "accompaniment" so downstream stages see one naming
// scheme.
package separator
