// Package snapshot dumps the resting orders of a book to a gob file
// and restores them into a fresh book. A snapshot records the journal
// sequence it covers so replay can resume right after it.
package snapshot
