// Package staging manages leftovers in staging_dir.
//
// A batch that is killed before its resource guard runs leaves item work
// directories, archive and download extractions, or a half-written bundle
// behind. CleanStale removes such entries once they are older than the
// configured age, and the staging Lock keeps cleanup from racing a live batch.
package staging
