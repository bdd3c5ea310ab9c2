// Package batch runs the item pipeline over every input of a source.
//
// Runner lists the items once, gives each a collision-free output name and
// processes them on a bounded worker pool. A failing or panicking item is
// recorded in the Report and never stops the others. Cancellation stops new
// items from starting; those items are reported as failed with the context
// error. When bundling is enabled the succeeded outputs are zipped into a
// single archive that is handed off to the output directory.
package batch
