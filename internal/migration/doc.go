// Package migration performs the one-shot upgrade of a user's plaintext
// tasks to the encrypted record format.
//
// The pass is gated by the user's migrationStatus document: once a run
// completes without skipping any task, later runs return immediately unless
// forced. Updates are committed through store batches of at most 500 writes.
package migration
