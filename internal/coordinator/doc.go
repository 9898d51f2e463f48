// Package coordinator keeps a live, decrypted view of a user's tasks merged
// with the tasks their peers share with them.
//
// A Coordinator runs two subscriptions against the document store: the
// user's own tasks, and the non-private tasks of up to ten peers. Batches are
// decoded on the subscription's goroutine and merged by the single goroutine
// running Run, which owns every piece of mutable state. Views are published
// on Updates after a short debounce.
//
// Subscriptions are closed while the app is hidden or offline and reopened
// after a settle delay. A subscription that fails with quota exhaustion is not
// reopened for the rest of the session; the last view stays published with
// ShowingCached set. Every reconnect passes through a token bucket.
//
// When an own task is visible to a peer that has no friend content on it, the
// coordinator encrypts the decoded text for that peer and writes it back.
package coordinator
