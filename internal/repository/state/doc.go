// Package state persists per-project apply records to a JSON file.
// Saving is best-effort from the caller's perspective: a failed record
// write never fails the update that produced it.
package state
