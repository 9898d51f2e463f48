// Package store defines the document database nudge syncs against.
//
// The interface mirrors the small surface the sync engine needs: point
// reads and writes, an atomic set-if-absent used to converge on shared keys,
// queries built from equality, array-contains, "in" (at most ten values) and
// order-by, live subscriptions that deliver change batches on a channel, and
// batched writes for the migration pass.
//
// Two adapters implement it: memstore keeps everything in process and is
// used by tests and the "memory" driver, mongostore talks to MongoDB and
// uses change streams for subscriptions.
//
// Matching, sorting and dotted-path helpers live here so both adapters
// evaluate queries identically.
package store
