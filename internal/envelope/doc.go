// Package envelope implements the authenticated-encryption format used for
// every user-authored string nudge stores remotely.
//
// # Format
//
// A payload is
//
//	"e1:" + base64( IV[12] || AES-256-GCM ciphertext || tag[16] )
//
// The IV is random per call, so encrypting the same text twice yields two
// different payloads. Payloads written before the tag existed are the same
// bytes without the "e1:" prefix and still decrypt.
//
// # Detection
//
// LooksEncrypted is purely format based: a tagged string is a payload; an
// untagged string is a payload only when it is standard base64 of at least
// 36 characters. Anything else is plaintext. Callers use it to avoid double
// encryption and to pass legacy plaintext through unchanged.
//
// # Keys
//
// Keys are 32 random bytes. Their exported form, stored in key records and
// the local key cache, is standard base64 of the raw bytes.
package envelope
