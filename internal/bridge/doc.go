// Package bridge renders push notification previews for a user whose app is
// not running.
//
// The only key material it reads is the durable local key cache written by
// the key custodian. Keys are held in memory while previews are being
// decrypted and dropped after a period of inactivity.
package bridge
