// Package memstore is an in-memory store.DocumentStore.
//
// It backs the "memory" store driver and every package test that needs a
// store. Besides the interface it exposes fault injection (FailNextRead,
// FailNextWrite, Break) and counters (Subscribes, Writes) so tests can
// simulate quota exhaustion and assert on read and write volume.
package memstore
