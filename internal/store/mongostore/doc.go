// Package mongostore implements store.DocumentStore on MongoDB.
//
// Documents are keyed by _id. Dotted field paths map directly onto MongoDB
// update paths, set-if-absent is an upsert guarded by $exists, and batches
// run inside a transaction. Subscriptions open a change stream with
// full-document lookup before loading the initial result, then keep a local
// snapshot so each batch carries the complete query result.
//
// Throttling responses from the server map to errors.ErrQuotaExhausted and
// network failures to errors.ErrNetworkUnavailable.
package mongostore
