// Package keycache is the durable local copy of a user's keys.
//
// The main process mirrors its master key and shared keys here whenever it
// reads its key record: on load, after a shared key is created, on reload
// and when the app returns to the foreground. The background agent only ever
// reads it, so push previews can be decrypted without the main process.
//
// Rows live in a SQLite database, one per (user, peer) with the master key
// under an empty peer id. Material is sealed with NaCl secretbox under a
// per-device key stored next to the database with mode 0600.
package keycache
