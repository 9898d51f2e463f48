// Package codec encrypts task and comment fields on write and decrypts them
// on read.
//
// Every user-authored field is stored once per reader. The owner's copy sits
// in the field itself, encrypted with the owner's master key. Each peer allowed
// to view the task gets a copy in the matching friend-content map, encrypted
// with the key the owner shares with that peer:
//
//	text               = Encrypt(plaintext, master(owner))
//	friendContent[p]   = Encrypt(plaintext, shared(owner, p))
//
// A peer's comment on someone else's task is encrypted once, with the key the
// author shares with the owner.
//
// Decoding never fails. Owners use their master key. Peers prefer their
// friend-content entry and fall back to trying every key they hold, which
// covers records written before friend content existed. Tasks the viewer may
// not see show PrivatePlaceholder without any decryption attempt, and each
// field that cannot be opened shows keys.Placeholder on its own.
package codec
