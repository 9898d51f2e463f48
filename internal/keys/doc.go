// Package keys holds a user's encryption keys for the length of a session.
//
// A Custodian owns the user's master key, which encrypts the user's own
// content, and one shared key per peer, which encrypts content shared with
// that peer. Both are persisted in the userKeys collection:
//
//	userKeys/{uid} = {masterKey, friendKeys: {peerId: key}, lastUpdated}
//
// # Master key
//
// Initialize reads the record and creates the master key with set-if-absent
// only when the record has none. A failed read or a corrupt record is
// retried on the backoff policy (2s, 4s, 8s, 16s, then every 30s). A
// replacement key is never minted, because that would orphan everything
// already encrypted under the old one.
//
// # Shared keys
//
// Both users of a pair store the same key under each other's id. Lookup goes
// cache, own record, peer record; only then is a key generated. The record of
// the smaller user id arbitrates races so both sides converge on one key.
// Decrypt paths look keys up but never create them.
//
// # Failure semantics
//
// Decrypt helpers never return ciphertext or an error: plaintext passes
// through and failures become Placeholder. Encrypt helpers hand back the
// plaintext with ErrDegraded when the key they need is unavailable, so a
// slow key load never blocks a write.
package keys
